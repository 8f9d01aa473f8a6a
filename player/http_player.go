package player

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// HTTPPrimitive streams PCM audio from a stable HTTP URL. Each
// instance performs exactly one connection attempt; reconnection policy
// lives with the caller.
type HTTPPrimitive struct {
	mu        sync.Mutex
	streamURL string
	cacheBust bool

	events EventFunc
	closed bool
	paused bool

	ctx        context.Context
	cancel     context.CancelFunc
	httpClient *http.Client
	response   *http.Response
	sink       *pcmSink
	volReader  *volumeReader
	volume     float64
}

// NewHTTPFactory returns a Factory producing HTTP stream primitives.
// With cacheBust set, each attempt appends a unique query parameter so
// intermediaries cannot serve a stale stream.
func NewHTTPFactory(initialVolume float64, cacheBust bool) Factory {
	return func(onEvent EventFunc) Primitive {
		return newHTTPPrimitive(initialVolume, cacheBust, onEvent)
	}
}

func newHTTPPrimitive(initialVolume float64, cacheBust bool, onEvent EventFunc) *HTTPPrimitive {
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPPrimitive{
		cacheBust: cacheBust,
		events:    onEvent,
		ctx:       ctx,
		cancel:    cancel,
		volume:    clampVolume(initialVolume),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for streaming
		},
	}
}

func (p *HTTPPrimitive) Load(streamURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamURL = streamURL
}

func (p *HTTPPrimitive) Play() error {
	p.mu.Lock()

	if err := p.connectLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	// Emitted outside the lock so the handler may call back in
	p.emit(Event{Kind: EventPlaying})
	return nil
}

func (p *HTTPPrimitive) connectLocked() error {
	if p.closed {
		return fmt.Errorf("primitive is closed")
	}
	if p.streamURL == "" {
		return fmt.Errorf("no stream URL loaded")
	}

	sink, err := newPCMSink()
	if err != nil {
		return err
	}
	p.sink = sink

	target := p.streamURL
	if p.cacheBust {
		target = withCacheBust(target)
	}

	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	p.response = resp

	// 64KB buffer absorbs network jitter
	buffered := bufio.NewReaderSize(resp.Body, 65536)
	p.volReader = newVolumeReader(buffered, p.volume,
		func() { p.emit(Event{Kind: EventProgress}) },
		func(err error) {
			if err != nil {
				p.emit(Event{Kind: EventError, Err: err})
			} else {
				p.emit(Event{Kind: EventEnded})
			}
		})

	sink.start(p.volReader)
	return nil
}

// emit delivers an event unless the primitive has been closed. Callers
// must not hold p.mu when the event handler may re-enter.
func (p *HTTPPrimitive) emit(ev Event) {
	p.mu.Lock()
	closed := p.closed
	events := p.events
	p.mu.Unlock()
	if !closed && events != nil {
		events(ev)
	}
}

func (p *HTTPPrimitive) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil {
		p.sink.pause()
	}
	p.paused = true
}

func (p *HTTPPrimitive) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *HTTPPrimitive) SetVolume(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(level)
	if p.volReader != nil {
		p.volReader.setVolume(p.volume)
	}
}

func (p *HTTPPrimitive) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sink := p.sink
	resp := p.response
	p.sink = nil
	p.response = nil
	p.mu.Unlock()

	p.cancel()
	if sink != nil {
		sink.close()
	}
	if resp != nil {
		resp.Body.Close()
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// withCacheBust appends a unique timestamp parameter to the URL.
func withCacheBust(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
