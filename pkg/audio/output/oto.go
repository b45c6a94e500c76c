// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams tracks through a persistent oto player reading the track buffer
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/mch25/pcmstream/pkg/audio"
)

// Oto output implementation using oto library.
// oto allows one context per process, so the first opened format sticks.
type Oto struct {
	config Config

	mu     sync.Mutex
	otoCtx *oto.Context
	format audio.Format
}

// NewOto creates a new Oto output
func NewOto(config Config) Output {
	return &Oto{config: config}
}

// Name identifies the backend
func (o *Oto) Name() string {
	return "oto"
}

// NativeSampleRate returns the configured rate; oto cannot query the device
func (o *Oto) NativeSampleRate() (int, error) {
	if o.config.NativeRate > 0 {
		return o.config.NativeRate, nil
	}
	return DefaultNativeRate, nil
}

// MinBufferSize returns the smallest usable track buffer
func (o *Oto) MinBufferSize(format audio.Format) (int, error) {
	return minBufferSize(format)
}

// Open initializes the context on first use and creates a track player
func (o *Oto) Open(cfg TrackConfig) (Track, error) {
	if err := validateFormat(cfg.Format); err != nil {
		return nil, err
	}

	ctx, err := o.context(cfg)
	if err != nil {
		return nil, err
	}

	t := newBufferedTrack(cfg)
	player := ctx.NewPlayer(t)
	player.SetBufferSize(o.playerBufferSize(cfg))
	t.drv = &otoDriver{player: player}

	log.Printf("Audio track opened: %dHz, %d channel(s), buffer %d bytes (oto)",
		cfg.Format.SampleRate, cfg.Format.Channels, cfg.BufferSize)

	return t, nil
}

// context returns the process-wide oto context, creating it if needed
func (o *Oto) context(cfg TrackConfig) (*oto.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.format != cfg.Format {
			return nil, fmt.Errorf("%w: oto context already running at %dHz/%dch",
				ErrBadValue, o.format.SampleRate, o.format.Channels)
		}
		if err := o.otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("failed to resume oto context: %w", err)
		}
		return o.otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.Format.SampleRate,
		ChannelCount: cfg.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	if cfg.LowLatency {
		op.BufferSize = minLatency
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = cfg.Format

	log.Printf("Audio output initialized: %dHz, %d channels", cfg.Format.SampleRate, cfg.Format.Channels)

	return ctx, nil
}

// playerBufferSize keeps oto's own read-ahead small; latency lives in the track buffer
func (o *Oto) playerBufferSize(cfg TrackConfig) int {
	size, err := minBufferSize(cfg.Format)
	if err != nil || size <= 0 {
		return 4096
	}
	return size
}

// Close suspends the context; oto cannot tear it down
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

// otoDriver controls a single oto player
type otoDriver struct {
	player *oto.Player
}

func (d *otoDriver) start() error {
	d.player.Play()
	return nil
}

func (d *otoDriver) pause() error {
	d.player.Pause()
	return nil
}

func (d *otoDriver) close() error {
	d.player.Pause()
	return d.player.Close()
}
