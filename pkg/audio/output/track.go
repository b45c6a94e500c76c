// ABOUTME: Buffered track shared by all backends
// ABOUTME: Non-blocking writes into a ring buffer drained by the device callback
package output

import (
	"io"
	"sync"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
)

// driver is the backend-specific half of a track
type driver interface {
	start() error
	pause() error
	close() error
}

// bufferedTrack implements Track on top of a RingBuffer
type bufferedTrack struct {
	format audio.Format
	ring   *RingBuffer
	drv    driver

	ctrlMu   sync.Mutex // serializes driver calls
	mu       sync.Mutex
	state    PlayState
	volume   float64
	released bool

	wake chan struct{}
	done chan struct{}
}

func newBufferedTrack(cfg TrackConfig) *bufferedTrack {
	size := audio.EvenLength(cfg.BufferSize)
	if size <= 0 {
		size = cfg.Format.BytesPerSecond()
	}
	return &bufferedTrack{
		format: cfg.Format,
		ring:   NewRingBuffer(size),
		state:  PlayStateStopped,
		volume: 1.0,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Write copies whole samples into the buffer without blocking
func (t *bufferedTrack) Write(p []byte) (int, error) {
	t.mu.Lock()
	released := t.released
	t.mu.Unlock()
	if released {
		return 0, ErrReleased
	}

	n := audio.EvenLength(t.ring.Free())
	if n > len(p) {
		n = audio.EvenLength(len(p))
	}
	if n == 0 {
		return 0, nil
	}

	written := t.ring.Write(p[:n])

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return written, nil
}

// SetVolume sets the gain (0.0-1.0)
func (t *bufferedTrack) SetVolume(volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return ErrReleased
	}
	t.volume = volume
	return nil
}

// Flush discards buffered audio
func (t *bufferedTrack) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return ErrReleased
	}
	t.ring.Reset()
	return nil
}

// Play starts the device
func (t *bufferedTrack) Play() error {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	prev, err := t.setState(PlayStatePlaying)
	if err != nil || prev == PlayStatePlaying {
		return err
	}

	// The device callback takes t.mu, so drivers run without it
	if err := t.drv.start(); err != nil {
		t.setState(prev)
		return err
	}
	return nil
}

// Pause halts the device, keeping buffered audio
func (t *bufferedTrack) Pause() error {
	return t.halt(PlayStatePaused)
}

// Stop halts the device
func (t *bufferedTrack) Stop() error {
	return t.halt(PlayStateStopped)
}

func (t *bufferedTrack) halt(next PlayState) error {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	prev, err := t.setState(next)
	if err != nil {
		return err
	}
	if prev == PlayStatePlaying {
		return t.drv.pause()
	}
	return nil
}

func (t *bufferedTrack) setState(next PlayState) (PlayState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return t.state, ErrReleased
	}
	prev := t.state
	t.state = next
	return prev, nil
}

// Release frees the device; repeated calls are no-ops
func (t *bufferedTrack) Release() error {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return nil
	}
	t.released = true
	t.state = PlayStateStopped
	t.mu.Unlock()

	close(t.done)
	return t.drv.close()
}

// PlayState reports the current state
func (t *bufferedTrack) PlayState() PlayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// fill is called from the device callback; underruns are zero-filled
func (t *bufferedTrack) fill(out []byte) int {
	t.mu.Lock()
	playing := t.state == PlayStatePlaying
	volume := t.volume
	t.mu.Unlock()

	n := 0
	if playing {
		n = audio.EvenLength(t.ring.Read(out))
		applyVolume(out[:n], volume)
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// Read adapts the track to the pull model used by oto.
// An empty buffer yields a short block of silence after waiting briefly,
// so the device keeps running without spinning.
func (t *bufferedTrack) Read(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, io.EOF
	default:
	}

	p = p[:audio.EvenLength(len(p))]
	if len(p) == 0 {
		return 0, nil
	}

	if t.ring.Available() == 0 {
		timer := time.NewTimer(10 * time.Millisecond)
		select {
		case <-t.wake:
		case <-timer.C:
		case <-t.done:
			timer.Stop()
			return 0, io.EOF
		}
		timer.Stop()
	}

	if avail := audio.EvenLength(t.ring.Available()); avail > 0 {
		if avail < len(p) {
			p = p[:avail]
		}
		t.fill(p)
		return len(p), nil
	}

	silence := audio.EvenLength(t.format.BytesPerSecond() / 100)
	if silence > 0 && silence < len(p) {
		p = p[:silence]
	}
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// applyVolume scales 16-bit little-endian samples in place
func applyVolume(pcm []byte, volume float64) {
	if volume >= 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		s = int16(float64(s) * volume)
		pcm[i] = byte(s)
		pcm[i+1] = byte(uint16(s) >> 8)
	}
}
