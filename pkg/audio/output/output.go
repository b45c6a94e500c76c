// ABOUTME: Audio output interface definition
// ABOUTME: Common interfaces for audio playback backends and the backend factory
package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
)

var (
	// ErrBadValue is returned for parameters a device cannot use
	ErrBadValue = errors.New("output: invalid parameters")

	// ErrReleased is returned when using a released track
	ErrReleased = errors.New("output: track released")

	// ErrUnsupportedFormat is returned for formats other than 16-bit PCM
	ErrUnsupportedFormat = errors.New("output: unsupported format")
)

// DefaultNativeRate is reported by backends that cannot query the device
const DefaultNativeRate = 48000

// minLatency is the shortest period a backend is asked to buffer
const minLatency = 40 * time.Millisecond

// PlayState reports whether a track is producing sound
type PlayState int

const (
	PlayStateStopped PlayState = iota
	PlayStatePaused
	PlayStatePlaying
)

func (s PlayState) String() string {
	switch s {
	case PlayStateStopped:
		return "stopped"
	case PlayStatePaused:
		return "paused"
	case PlayStatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("PlayState(%d)", int(s))
	}
}

// TrackConfig describes a track to open
type TrackConfig struct {
	Format     audio.Format
	BufferSize int  // bytes
	LowLatency bool // performance hint, honored where the backend supports it
}

// Output represents an audio output device
type Output interface {
	// Name identifies the backend
	Name() string

	// NativeSampleRate reports the device's preferred rate
	NativeSampleRate() (int, error)

	// MinBufferSize returns the smallest usable track buffer in bytes
	MinBufferSize(format audio.Format) (int, error)

	// Open creates a streaming track; nothing stays allocated on error
	Open(cfg TrackConfig) (Track, error)

	// Close releases device-wide resources
	Close() error
}

// Track is a streaming sink opened on an Output
type Track interface {
	// Write copies as much of p as fits in the track buffer without blocking
	Write(p []byte) (int, error)

	// SetVolume sets the gain (0.0-1.0)
	SetVolume(volume float64) error

	// Flush discards buffered, unplayed audio
	Flush() error

	Play() error
	Pause() error
	Stop() error

	// Release frees the track; calling it again is a no-op
	Release() error

	PlayState() PlayState
}

// Config holds backend options
type Config struct {
	// NativeRate overrides the reported native rate (0 = query or default)
	NativeRate int
}

// New creates the named backend
func New(backend string, config Config) (Output, error) {
	switch backend {
	case "", "oto":
		return NewOto(config), nil
	case "malgo":
		return NewMalgo(config), nil
	case "portaudio":
		return NewPortAudio(config), nil
	case "null":
		return NewNull(config), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", backend)
	}
}

// minBufferSize is the shared minimum for backends without a device query
func minBufferSize(format audio.Format) (int, error) {
	if err := validateFormat(format); err != nil {
		return 0, err
	}
	size := int(int64(format.BytesPerSecond()) * int64(minLatency) / int64(time.Second))
	return audio.EvenLength(size), nil
}

func validateFormat(format audio.Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("%w: %dHz %dch", ErrBadValue, format.SampleRate, format.Channels)
	}
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit", ErrUnsupportedFormat, format.BitDepth)
	}
	return nil
}
