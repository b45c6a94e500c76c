// ABOUTME: PCM sources for the reference stream server
// ABOUTME: Generates a test tone or loops a WAV or MP3 file as 8kHz mono samples
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/audio/resample"
)

// Source produces 16-bit mono samples at audio.SourceSampleRate
type Source interface {
	// Read fills samples and returns how many were written
	Read(samples []int16) (int, error)
	// Name describes the source for logs and mDNS
	Name() string
	Close() error
}

// SourceFactory opens an independent Source for each listener
type SourceFactory func() (Source, error)

// ToneSource generates a sine tone
type ToneSource struct {
	frequency   float64
	amplitude   float64
	sampleIndex uint64
}

// NewToneSource creates a tone generator at 50% volume
func NewToneSource(frequency float64) *ToneSource {
	return &ToneSource{
		frequency: frequency,
		amplitude: 0.5,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(audio.SourceSampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * s.amplitude)
	}
	s.sampleIndex += uint64(len(samples))
	return len(samples), nil
}

func (s *ToneSource) Name() string { return fmt.Sprintf("%.0fHz tone", s.frequency) }
func (s *ToneSource) Close() error { return nil }

// FileSource loops the decoded contents of an audio file
type FileSource struct {
	name    string
	samples []int16
	pos     int
}

// LoadFile decodes an MP3 or WAV file, chosen by extension
func LoadFile(path string) (*FileSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return LoadMP3(path)
	default:
		return LoadWAV(path)
	}
}

// LoadWAV decodes a WAV file into memory, downmixing to mono and
// resampling to the stream rate
func LoadWAV(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("WAV file has no usable format: %s", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	return newFileSource(path, buf.Data, buf.Format.NumChannels, buf.Format.SampleRate, bitDepth)
}

// LoadMP3 decodes an MP3 file into memory. The decoder always yields
// 16-bit little-endian stereo.
func LoadMP3(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	data := make([]int, len(raw)/audio.BytesPerSample)
	for i := range data {
		data[i] = int(audio.Sample(raw, i))
	}
	return newFileSource(path, data, 2, dec.SampleRate(), 16)
}

// newFileSource downmixes interleaved samples to 16-bit mono and resamples
// them to the stream rate
func newFileSource(name string, data []int, channels, rate, bitDepth int) (*FileSource, error) {
	if channels < 1 || rate < 1 {
		return nil, fmt.Errorf("audio file has no usable format: %s", name)
	}
	frames := len(data) / channels
	if frames == 0 {
		return nil, errors.New("audio file contains no samples")
	}

	pcm := make([]byte, frames*audio.BytesPerSample)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += to16(data[i*channels+ch], bitDepth)
		}
		audio.PutSample(pcm, i, int16(sum/channels))
	}

	if rate != audio.SourceSampleRate {
		pcm = resample.Linear(pcm, rate, audio.SourceSampleRate)
	}

	samples := make([]int16, len(pcm)/audio.BytesPerSample)
	for i := range samples {
		samples[i] = audio.Sample(pcm, i)
	}

	log.Printf("Loaded %s: %dHz, %d channels, %d-bit, %d frames", name, rate, channels, bitDepth, frames)

	return &FileSource{name: name, samples: samples}, nil
}

// to16 scales a decoded sample of the given depth to 16 bits
func to16(v, bitDepth int) int {
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned
		return (v - 128) << 8
	case bitDepth > 16:
		return v >> (bitDepth - 16)
	default:
		return v
	}
}

// Clone returns a source over the same samples with its own position
func (s *FileSource) Clone() *FileSource {
	return &FileSource{name: s.name, samples: s.samples}
}

func (s *FileSource) Read(samples []int16) (int, error) {
	for i := range samples {
		samples[i] = s.samples[s.pos]
		s.pos = (s.pos + 1) % len(s.samples)
	}
	return len(samples), nil
}

func (s *FileSource) Name() string { return s.name }
func (s *FileSource) Close() error { return nil }

// NewSourceFactory returns a tone factory when path is empty, otherwise a
// factory sharing one decoded copy of the file
func NewSourceFactory(path string) (SourceFactory, error) {
	if path == "" {
		return func() (Source, error) {
			return NewToneSource(440), nil
		}, nil
	}

	fileSrc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return func() (Source, error) {
		return fileSrc.Clone(), nil
	}, nil
}
