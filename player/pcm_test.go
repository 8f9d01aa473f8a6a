package player

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFrames(samples ...int16) []byte {
	buf := &bytes.Buffer{}
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestVolumeReaderScalesSamples(t *testing.T) {
	src := bytes.NewReader(pcmFrames(1000, -2000, 400, 0))
	vr := newVolumeReader(src, 0.5, func() {}, func(error) {})

	out := make([]byte, 16)
	n, err := vr.Read(out)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	got := make([]int16, 4)
	require.NoError(t, binary.Read(bytes.NewReader(out[:n]), binary.LittleEndian, &got))
	assert.Equal(t, []int16{500, -1000, 200, 0}, got)
}

func TestVolumeReaderFullVolumePassesThrough(t *testing.T) {
	src := bytes.NewReader(pcmFrames(12345, -12345))
	vr := newVolumeReader(src, 1.0, func() {}, func(error) {})

	out := make([]byte, 8)
	n, err := vr.Read(out)
	require.NoError(t, err)

	got := make([]int16, 2)
	require.NoError(t, binary.Read(bytes.NewReader(out[:n]), binary.LittleEndian, &got))
	assert.Equal(t, []int16{12345, -12345}, got)
}

// chunkedReader returns at most chunk bytes per Read to force frame
// misalignment.
type chunkedReader struct {
	data  []byte
	pos   int
	chunk int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.chunk
	if n > len(c.data)-c.pos {
		n = len(c.data) - c.pos
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	return n, nil
}

func TestVolumeReaderKeepsFrameAlignment(t *testing.T) {
	data := pcmFrames(100, 200, 300, 400) // two 4-byte frames
	src := &chunkedReader{data: data, chunk: 3}
	vr := newVolumeReader(src, 1.0, func() {}, func(error) {})

	var collected []byte
	buf := make([]byte, 64)
	for {
		n, err := vr.Read(buf)
		assert.Zero(t, n%frameSize, "every delivery is frame aligned")
		collected = append(collected, buf[:n]...)
		if err != nil {
			break
		}
	}
	assert.Equal(t, data, collected, "no bytes lost across misaligned reads")
}

func TestVolumeReaderReportsCleanEOF(t *testing.T) {
	var done bool
	var doneErr error
	vr := newVolumeReader(bytes.NewReader(pcmFrames(1, 2)), 1.0, func() {}, func(err error) {
		done = true
		doneErr = err
	})

	buf := make([]byte, 64)
	for {
		_, err := vr.Read(buf)
		if err != nil {
			break
		}
	}
	assert.True(t, done)
	assert.NoError(t, doneErr, "EOF is a clean end, not an error")
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestVolumeReaderReportsFailure(t *testing.T) {
	cause := errors.New("connection reset")
	var doneErr error
	vr := newVolumeReader(&failingReader{err: cause}, 1.0, func() {}, func(err error) {
		doneErr = err
	})

	_, err := vr.Read(make([]byte, 16))
	require.Error(t, err)
	assert.ErrorIs(t, doneErr, cause)
}

func TestVolumeReaderNotifiesDataFlow(t *testing.T) {
	var notified int
	vr := newVolumeReader(bytes.NewReader(pcmFrames(1, 2, 3, 4)), 1.0,
		func() { notified++ }, func(error) {})

	vr.Read(make([]byte, 64))
	assert.Equal(t, 1, notified, "first delivery reports progress")
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0.0, clampVolume(-1))
	assert.Equal(t, 1.0, clampVolume(2))
	assert.Equal(t, 0.5, clampVolume(0.5))
}

func TestWithCacheBust(t *testing.T) {
	u := withCacheBust("https://stream.test/live")
	assert.Contains(t, u, "https://stream.test/live?t=")

	u2 := withCacheBust("https://stream.test/live?type=b")
	assert.Contains(t, u2, "t=")
	assert.Contains(t, u2, "type=b")
}
