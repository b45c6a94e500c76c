// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM chunks, output formats and sample rate negotiation
package audio

import (
	"encoding/binary"
	"time"
)

const (
	// SourceSampleRate is the fixed rate of the network PCM stream
	SourceSampleRate = 8000

	// HeaderSize is the container header preceding the raw samples
	HeaderSize = 44

	// BytesPerSample for 16-bit mono
	BytesPerSample = 2

	// ReadBlockSize is the network read unit
	ReadBlockSize = 8192
)

// SupportedRates are the playback tiers, highest first
var SupportedRates = []int{44100, 22050, 16000}

// Chunk is a block of 16-bit little-endian mono samples.
// A chunk always holds whole samples and must not be modified once queued.
type Chunk []byte

// Samples returns the number of whole samples in the chunk
func (c Chunk) Samples() int {
	return len(c) / BytesPerSample
}

// Format describes the PCM format a device is opened with
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Mono16 returns the 16-bit mono format at the given rate
func Mono16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// FrameSize returns bytes per frame
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the byte rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Duration returns how long n bytes take to play
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// NegotiateRate rounds a device's native rate down to the nearest supported
// tier, falling back to the source rate when the device is below every tier.
func NegotiateRate(nativeRate int) int {
	for _, rate := range SupportedRates {
		if nativeRate >= rate {
			return rate
		}
	}
	return SourceSampleRate
}

// EvenLength truncates n down to a whole number of samples
func EvenLength(n int) int {
	return n - n%BytesPerSample
}

// Sample reads the i-th 16-bit little-endian sample
func Sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// PutSample writes the i-th 16-bit little-endian sample
func PutSample(pcm []byte, i int, sample int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
}
