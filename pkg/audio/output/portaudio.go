//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using PortAudio stream callbacks
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/mch25/pcmstream/pkg/audio"
)

// PortAudio output implementation
type PortAudio struct {
	config Config

	mu          sync.Mutex
	initialized bool
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(config Config) Output {
	return &PortAudio{config: config}
}

// Name identifies the backend
func (p *PortAudio) Name() string {
	return "portaudio"
}

func (p *PortAudio) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// NativeSampleRate reports the default output device's rate
func (p *PortAudio) NativeSampleRate() (int, error) {
	if p.config.NativeRate > 0 {
		return p.config.NativeRate, nil
	}
	if err := p.init(); err != nil {
		return 0, err
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return 0, fmt.Errorf("failed to query output device: %w", err)
	}
	if device.DefaultSampleRate <= 0 {
		return DefaultNativeRate, nil
	}
	return int(device.DefaultSampleRate), nil
}

// MinBufferSize returns the smallest usable track buffer
func (p *PortAudio) MinBufferSize(format audio.Format) (int, error) {
	return minBufferSize(format)
}

// Open creates a callback stream feeding from a new track buffer
func (p *PortAudio) Open(cfg TrackConfig) (Track, error) {
	if err := validateFormat(cfg.Format); err != nil {
		return nil, err
	}
	if err := p.init(); err != nil {
		return nil, err
	}

	t := newBufferedTrack(cfg)
	var scratch []byte

	framesPerBuffer := 0
	if cfg.LowLatency {
		framesPerBuffer = int(int64(cfg.Format.SampleRate) * minLatency.Milliseconds() / 1000)
	}

	stream, err := portaudio.OpenDefaultStream(0, cfg.Format.Channels, float64(cfg.Format.SampleRate), framesPerBuffer,
		func(out []int16) {
			if cap(scratch) < len(out)*2 {
				scratch = make([]byte, len(out)*2)
			}
			buf := scratch[:len(out)*2]
			t.fill(buf)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
		})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	t.drv = &portAudioDriver{stream: stream}

	log.Printf("Audio track opened: %dHz, %d channel(s), buffer %d bytes (portaudio)",
		cfg.Format.SampleRate, cfg.Format.Channels, cfg.BufferSize)

	return t, nil
}

// Close terminates PortAudio
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

type portAudioDriver struct {
	stream *portaudio.Stream
}

func (d *portAudioDriver) start() error {
	return d.stream.Start()
}

func (d *portAudioDriver) pause() error {
	return d.stream.Stop()
}

func (d *portAudioDriver) close() error {
	return d.stream.Close()
}
