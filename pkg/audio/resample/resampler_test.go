// ABOUTME: Tests for the linear resamplers
// ABOUTME: Covers identity, output length, monotonicity and stream continuity
package resample

import (
	"bytes"
	"testing"

	"github.com/mch25/pcmstream/pkg/audio"
)

func makePCM(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		audio.PutSample(pcm, i, s)
	}
	return pcm
}

func readPCM(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = audio.Sample(pcm, i)
	}
	return samples
}

func ramp(n int, start, step int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(start + i*step)
	}
	return samples
}

func TestLinearIdentity(t *testing.T) {
	inputs := [][]int16{
		{},
		{42},
		{-32768, 32767, 0, 1, -1},
		ramp(4096, -20000, 9),
	}

	for _, in := range inputs {
		pcm := makePCM(in)
		out := Linear(pcm, 8000, 8000)
		if !bytes.Equal(out, pcm) {
			t.Errorf("expected identity for %d samples", len(in))
		}
		if len(pcm) > 0 && &out[0] == &pcm[0] {
			t.Error("expected identity to return a copy")
		}
	}
}

func TestLinearOutputLength(t *testing.T) {
	rates := []struct {
		src, dst int
	}{
		{8000, 44100},
		{8000, 22050},
		{8000, 16000},
		{44100, 8000},
		{8000, 8000},
	}
	sizes := []int{0, 1, 2, 3, 100, 4096}

	for _, r := range rates {
		for _, n := range sizes {
			out := Linear(makePCM(make([]int16, n)), r.src, r.dst)
			want := n * r.dst / r.src
			if len(out)/2 != want {
				t.Errorf("%d->%d with %d samples: expected %d outputs, got %d",
					r.src, r.dst, n, want, len(out)/2)
			}
			if len(out)%2 != 0 {
				t.Errorf("output length %d is not whole samples", len(out))
			}
		}
	}
}

func TestLinearMonotonic(t *testing.T) {
	tests := []struct {
		name  string
		input []int16
	}{
		{"positive ramp", ramp(1000, 0, 30)},
		{"negative ramp", ramp(1000, -32000, 31)},
		{"crossing zero", ramp(500, -250, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, dst := range []int{16000, 22050, 44100} {
				out := readPCM(Linear(makePCM(tt.input), 8000, dst))
				for i := 1; i < len(out); i++ {
					if out[i] < out[i-1] {
						t.Fatalf("rate %d: output decreased at %d: %d -> %d", dst, i, out[i-1], out[i])
					}
				}
			}
		})
	}
}

func TestLinearInterpolation(t *testing.T) {
	// Doubling the rate puts every other output halfway between inputs
	out := readPCM(Linear(makePCM([]int16{0, 100, 200, -100}), 8000, 16000))
	// Positions 3.0 and 3.5 both land on the last sample, which has no partner
	expected := []int16{0, 50, 100, 150, 200, 50, -100, -100}

	if len(out) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(out))
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], out[i])
		}
	}
}

func TestLinearTruncatesTowardZero(t *testing.T) {
	// 1/3 of the way from 0 to -10 is -3.33, truncated to -3
	out := readPCM(Linear(makePCM([]int16{0, -10, -10}), 8000, 24000))
	if out[1] != -3 {
		t.Errorf("expected -3, got %d", out[1])
	}
}

func TestLinearExtremes(t *testing.T) {
	out := readPCM(Linear(makePCM([]int16{-32768, 32767, -32768, 32767}), 8000, 44100))
	if len(out) != 22 {
		t.Fatalf("expected 22 samples, got %d", len(out))
	}
	if out[0] != -32768 {
		t.Errorf("expected first sample -32768, got %d", out[0])
	}
}

func TestStreamMatchesWholeInput(t *testing.T) {
	input := ramp(200, -3000, 37)
	whole := NewStream(8000, 16000).Process(makePCM(input))

	s := NewStream(8000, 16000)
	var split []byte
	split = append(split, s.Process(makePCM(input[:120]))...)
	split = append(split, s.Process(makePCM(input[120:]))...)

	if !bytes.Equal(whole, split) {
		t.Errorf("split processing differs: %d vs %d bytes", len(whole), len(split))
	}
}

func TestStreamBoundaryInterpolates(t *testing.T) {
	s := NewStream(8000, 16000)
	first := readPCM(s.Process(makePCM([]int16{0, 100})))
	second := readPCM(s.Process(makePCM([]int16{200, 300})))

	if len(first) != 2 || first[1] != 50 {
		t.Fatalf("unexpected first block: %v", first)
	}
	// Continues at 100, 150, 200, 250 across the join
	expected := []int16{100, 150, 200, 250}
	if len(second) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, second)
	}
	for i := range expected {
		if second[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], second[i])
		}
	}
}

func TestStreamReset(t *testing.T) {
	s := NewStream(8000, 22050)
	first := s.Process(makePCM(ramp(64, 0, 10)))
	s.Reset()
	again := s.Process(makePCM(ramp(64, 0, 10)))

	if !bytes.Equal(first, again) {
		t.Error("expected identical output after Reset")
	}
}

func TestForRates(t *testing.T) {
	fn := ForRates(8000, 16000)
	out := fn(makePCM([]int16{0, 100}))
	if len(out) != 8 {
		t.Errorf("expected 4 samples, got %d bytes", len(out))
	}
}
