// ABOUTME: Silent output that discards audio in real time
// ABOUTME: Used for headless runs and tests without a sound device
package output

import (
	"log"
	"sync"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
)

// nullTick is how often a null track drains its buffer
const nullTick = 10 * time.Millisecond

// Null consumes track buffers at the track's byte rate without producing sound
type Null struct {
	config Config
}

// NewNull creates a new Null output
func NewNull(config Config) Output {
	return &Null{config: config}
}

// Name identifies the backend
func (n *Null) Name() string {
	return "null"
}

// NativeSampleRate returns the configured or default rate
func (n *Null) NativeSampleRate() (int, error) {
	if n.config.NativeRate > 0 {
		return n.config.NativeRate, nil
	}
	return DefaultNativeRate, nil
}

// MinBufferSize returns the smallest usable track buffer
func (n *Null) MinBufferSize(format audio.Format) (int, error) {
	return minBufferSize(format)
}

// Open creates a track drained by a ticker while playing
func (n *Null) Open(cfg TrackConfig) (Track, error) {
	if err := validateFormat(cfg.Format); err != nil {
		return nil, err
	}

	t := newBufferedTrack(cfg)
	d := &nullDriver{track: t}
	t.drv = d

	log.Printf("Audio track opened: %dHz, %d channel(s), buffer %d bytes (null)",
		cfg.Format.SampleRate, cfg.Format.Channels, cfg.BufferSize)

	return t, nil
}

// Close is a no-op
func (n *Null) Close() error {
	return nil
}

type nullDriver struct {
	track *bufferedTrack

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *nullDriver) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})

	d.wg.Add(1)
	go d.drain(d.stop)
	return nil
}

func (d *nullDriver) drain(stop chan struct{}) {
	defer d.wg.Done()

	period := audio.EvenLength(int(int64(d.track.format.BytesPerSecond()) * int64(nullTick) / int64(time.Second)))
	if period <= 0 {
		period = 2
	}
	buf := make([]byte, period)

	ticker := time.NewTicker(nullTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.track.fill(buf)
		}
	}
}

func (d *nullDriver) pause() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

func (d *nullDriver) close() error {
	return d.pause()
}
