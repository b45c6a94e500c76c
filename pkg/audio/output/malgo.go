// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with a callback draining the track buffer
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mch25/pcmstream/pkg/audio"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	config Config

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a new Malgo output
func NewMalgo(config Config) Output {
	return &Malgo{config: config}
}

// Name identifies the backend
func (m *Malgo) Name() string {
	return "malgo"
}

// NativeSampleRate asks miniaudio for the default device rate
func (m *Malgo) NativeSampleRate() (int, error) {
	if m.config.NativeRate > 0 {
		return m.config.NativeRate, nil
	}

	ctx, err := m.context()
	if err != nil {
		return 0, err
	}

	// A zero rate lets miniaudio pick the device's native one
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = 0

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		return 0, fmt.Errorf("failed to probe playback device: %w", err)
	}
	defer device.Uninit()

	rate := int(device.SampleRate())
	if rate <= 0 {
		return DefaultNativeRate, nil
	}
	return rate, nil
}

// MinBufferSize returns the smallest usable track buffer
func (m *Malgo) MinBufferSize(format audio.Format) (int, error) {
	return minBufferSize(format)
}

// Open creates a playback device feeding from a new track buffer
func (m *Malgo) Open(cfg TrackConfig) (Track, error) {
	if err := validateFormat(cfg.Format); err != nil {
		return nil, err
	}

	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	t := newBufferedTrack(cfg)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if cfg.LowLatency {
		deviceConfig.PeriodSizeInMilliseconds = uint32(minLatency.Milliseconds())
	}

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		t.fill(pOutputSample)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	t.drv = &malgoDriver{device: device}

	log.Printf("Audio track opened: %dHz, %d channel(s), buffer %d bytes (malgo)",
		cfg.Format.SampleRate, cfg.Format.Channels, cfg.BufferSize)

	return t, nil
}

func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx, nil
}

// Close releases the malgo context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	err := m.malgoCtx.Uninit()
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return err
}

// malgoDriver controls a single miniaudio device
type malgoDriver struct {
	device *malgo.Device
}

func (d *malgoDriver) start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

func (d *malgoDriver) pause() error {
	return d.device.Stop()
}

func (d *malgoDriver) close() error {
	d.device.Uninit()
	return nil
}
