package player

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WSPrimitive plays audio pushed over a persistent WebSocket channel.
// Each text message carries one hex-encoded PCM frame; binary messages
// carry raw PCM. Frames are piped into the shared audio sink as they
// arrive.
type WSPrimitive struct {
	mu        sync.Mutex
	streamURL string

	events EventFunc
	closed bool
	paused bool

	conn      *websocket.Conn
	pipeW     *io.PipeWriter
	sink      *pcmSink
	volReader *volumeReader
	volume    float64
}

// NewWSFactory returns a Factory producing WebSocket push primitives.
func NewWSFactory(initialVolume float64) Factory {
	return func(onEvent EventFunc) Primitive {
		return &WSPrimitive{
			events: onEvent,
			volume: clampVolume(initialVolume),
		}
	}
}

func (p *WSPrimitive) Load(streamURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamURL = streamURL
}

func (p *WSPrimitive) Play() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("primitive is closed")
	}
	if p.streamURL == "" {
		p.mu.Unlock()
		return fmt.Errorf("no stream URL loaded")
	}

	sink, err := newPCMSink()
	if err != nil {
		p.mu.Unlock()
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(p.streamURL, nil)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("dial stream: %w", err)
	}

	pr, pw := io.Pipe()
	p.conn = conn
	p.pipeW = pw
	p.sink = sink
	p.volReader = newVolumeReader(pr, p.volume,
		func() { p.emit(Event{Kind: EventProgress}) },
		func(err error) {
			if err != nil {
				p.emit(Event{Kind: EventError, Err: err})
			} else {
				p.emit(Event{Kind: EventEnded})
			}
		})

	sink.start(p.volReader)
	p.mu.Unlock()

	go p.readFrames(conn, pw)

	p.emit(Event{Kind: EventPlaying})
	return nil
}

// readFrames pumps decoded frames from the socket into the audio pipe
// until the connection ends. Closing the pipe propagates termination to
// the sink's reader, which reports it as ended or errored.
func (p *WSPrimitive) readFrames(conn *websocket.Conn, pw *io.PipeWriter) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pw.Close()
			} else {
				pw.CloseWithError(fmt.Errorf("read stream frame: %w", err))
			}
			return
		}

		var frame []byte
		switch msgType {
		case websocket.TextMessage:
			frame, err = hex.DecodeString(string(data))
			if err != nil {
				pw.CloseWithError(fmt.Errorf("decode stream frame: %w", err))
				return
			}
		case websocket.BinaryMessage:
			frame = data
		default:
			continue
		}

		if _, err := pw.Write(frame); err != nil {
			// Pipe closed by Close; nothing left to report
			return
		}
	}
}

func (p *WSPrimitive) emit(ev Event) {
	p.mu.Lock()
	closed := p.closed
	events := p.events
	p.mu.Unlock()
	if !closed && events != nil {
		events(ev)
	}
}

func (p *WSPrimitive) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil {
		p.sink.pause()
	}
	p.paused = true
}

func (p *WSPrimitive) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *WSPrimitive) SetVolume(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(level)
	if p.volReader != nil {
		p.volReader.setVolume(p.volume)
	}
}

func (p *WSPrimitive) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conn := p.conn
	pipeW := p.pipeW
	sink := p.sink
	p.conn = nil
	p.pipeW = nil
	p.sink = nil
	p.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if pipeW != nil {
		pipeW.Close()
	}
	if sink != nil {
		sink.close()
	}
}
