package player

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate   = 48000
	channelCount = 2
	// 2 bytes per sample * 2 channels
	frameSize = 4
)

// oto allows only one hardware context per process, so it is shared
// across playback attempts; individual oto players come and go.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedOtoContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// pcmSink drives the audio device from an io.Reader of signed 16-bit
// little-endian stereo PCM.
type pcmSink struct {
	mu     sync.Mutex
	player *oto.Player
}

func newPCMSink() (*pcmSink, error) {
	if _, err := sharedOtoContext(); err != nil {
		return nil, err
	}
	return &pcmSink{}, nil
}

// start begins pulling from r. oto reads on its own goroutine, so any
// read error surfaces inside r.
func (s *pcmSink) start(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = otoCtx.NewPlayer(r)
	s.player.Play()
}

func (s *pcmSink) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
}

func (s *pcmSink) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Play()
	}
}

func (s *pcmSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
}

// volumeReader wraps the transport stream, applies volume with PCM
// frame alignment, and reports data flow and stream termination to its
// owner. Incomplete frames are held over to the next read.
type volumeReader struct {
	reader  io.Reader
	residue []byte

	mu     sync.Mutex
	volume float64

	onData func()      // called while data keeps arriving, rate-limited
	onDone func(error) // called once when the stream ends; nil err = clean EOF

	lastNotify time.Time
	doneOnce   sync.Once
}

func newVolumeReader(r io.Reader, volume float64, onData func(), onDone func(error)) *volumeReader {
	return &volumeReader{
		reader:  r,
		residue: make([]byte, 0, frameSize),
		volume:  volume,
		onData:  onData,
		onDone:  onDone,
	}
}

func (vr *volumeReader) setVolume(volume float64) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.volume = volume
}

func (vr *volumeReader) getVolume() float64 {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	return vr.volume
}

func (vr *volumeReader) Read(p []byte) (int, error) {
	// Prepend any incomplete frame from the previous read
	offset := 0
	if len(vr.residue) > 0 {
		offset = copy(p, vr.residue)
		vr.residue = vr.residue[:0]
	}

	n, err := vr.reader.Read(p[offset:])
	n += offset

	if n > 0 {
		if now := time.Now(); now.Sub(vr.lastNotify) >= time.Second {
			vr.lastNotify = now
			vr.onData()
		}

		// Ensure frame alignment before scaling samples
		alignedLen := (n / frameSize) * frameSize
		if alignedLen < n {
			vr.residue = append(vr.residue, p[alignedLen:n]...)
			n = alignedLen
		}

		volume := vr.getVolume()
		for i := 0; i < n; i += 2 {
			sample := int16(uint16(p[i]) | uint16(p[i+1])<<8)
			sample = int16(float64(sample) * volume)
			p[i] = byte(sample)
			p[i+1] = byte(sample >> 8)
		}
	}

	if err != nil {
		vr.doneOnce.Do(func() {
			if err == io.EOF {
				vr.onDone(nil)
			} else {
				vr.onDone(err)
			}
		})
	}
	return n, err
}
