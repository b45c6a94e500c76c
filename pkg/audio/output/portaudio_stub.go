//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"

	"github.com/mch25/pcmstream/pkg/audio"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(config Config) Output {
	return &PortAudio{}
}

// Name identifies the backend
func (p *PortAudio) Name() string {
	return "portaudio"
}

// NativeSampleRate always fails without PortAudio
func (p *PortAudio) NativeSampleRate() (int, error) {
	return 0, errPortAudioDisabled
}

// MinBufferSize always fails without PortAudio
func (p *PortAudio) MinBufferSize(format audio.Format) (int, error) {
	return 0, errPortAudioDisabled
}

// Open always fails without PortAudio
func (p *PortAudio) Open(cfg TrackConfig) (Track, error) {
	return nil, errPortAudioDisabled
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
