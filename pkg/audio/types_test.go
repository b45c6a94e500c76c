// ABOUTME: Tests for audio types
// ABOUTME: Verifies rate negotiation, chunk sizing and sample helpers
package audio

import (
	"testing"
	"time"
)

func TestNegotiateRate(t *testing.T) {
	tests := []struct {
		name     string
		native   int
		expected int
	}{
		{"48k device", 48000, 44100},
		{"exact 44.1k", 44100, 44100},
		{"32k device", 32000, 22050},
		{"exact 22.05k", 22050, 22050},
		{"16k device", 16000, 16000},
		{"11k device", 11025, SourceSampleRate},
		{"unknown rate", 0, SourceSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NegotiateRate(tt.native); got != tt.expected {
				t.Errorf("NegotiateRate(%d) = %d, expected %d", tt.native, got, tt.expected)
			}
		})
	}
}

func TestEvenLength(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, 0},
		{1, 0},
		{2, 2},
		{8191, 8190},
		{8192, 8192},
	}

	for _, tt := range tests {
		if got := EvenLength(tt.input); got != tt.expected {
			t.Errorf("EvenLength(%d) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestSampleRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 1000, -1000, 32767, -32768}
	pcm := make([]byte, len(samples)*2)

	for i, s := range samples {
		PutSample(pcm, i, s)
	}

	for i, want := range samples {
		if got := Sample(pcm, i); got != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}

	// Little-endian layout
	if pcm[2] != 0x01 || pcm[3] != 0x00 {
		t.Errorf("expected little-endian bytes for 1, got %#x %#x", pcm[2], pcm[3])
	}
}

func TestChunkSamples(t *testing.T) {
	c := Chunk(make([]byte, 8192))
	if c.Samples() != 4096 {
		t.Errorf("expected 4096 samples, got %d", c.Samples())
	}
}

func TestFormatDuration(t *testing.T) {
	f := Mono16(SourceSampleRate)

	if f.BytesPerSecond() != 16000 {
		t.Errorf("expected 16000 bytes/s, got %d", f.BytesPerSecond())
	}

	if d := f.Duration(ReadBlockSize); d != 512*time.Millisecond {
		t.Errorf("expected 512ms for one block, got %v", d)
	}

	if d := (Format{}).Duration(100); d != 0 {
		t.Errorf("expected zero duration for empty format, got %v", d)
	}
}
