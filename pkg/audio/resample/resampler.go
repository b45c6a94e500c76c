// ABOUTME: Linear resamplers for 16-bit little-endian mono PCM
// ABOUTME: Stateless per-block conversion plus a phase-carrying stream variant
package resample

import (
	"github.com/mch25/pcmstream/pkg/audio"
)

// Func converts a block of PCM to the output rate
type Func func(pcm []byte) []byte

// OutputSamples returns floor(inputSamples * dstRate / srcRate)
func OutputSamples(inputSamples, srcRate, dstRate int) int {
	return int(int64(inputSamples) * int64(dstRate) / int64(srcRate))
}

// Linear converts pcm from srcRate to dstRate using linear interpolation.
// Equal rates return a copy of the input.
func Linear(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	inputSamples := len(pcm) / audio.BytesPerSample
	outputSamples := OutputSamples(inputSamples, srcRate, dstRate)
	output := make([]byte, outputSamples*audio.BytesPerSample)

	for i := 0; i < outputSamples; i++ {
		srcPos := float64(i) * float64(srcRate) / float64(dstRate)
		srcIdx := int(srcPos)

		switch {
		case srcIdx < inputSamples-1:
			frac := srcPos - float64(srcIdx)
			audio.PutSample(output, i, interpolate(audio.Sample(pcm, srcIdx), audio.Sample(pcm, srcIdx+1), frac))
		case srcIdx == inputSamples-1:
			// Last sample has no partner
			audio.PutSample(output, i, audio.Sample(pcm, srcIdx))
		}
		// Positions past the input stay silent
	}

	return output
}

// ForRates returns a stateless Func for the given rates
func ForRates(srcRate, dstRate int) Func {
	return func(pcm []byte) []byte {
		return Linear(pcm, srcRate, dstRate)
	}
}

// interpolate truncates toward zero, which cannot leave the range of s1..s2
func interpolate(s1, s2 int16, frac float64) int16 {
	return int16(float64(s1) + float64(int(s2)-int(s1))*frac)
}

// Stream performs linear interpolation across consecutive blocks
type Stream struct {
	inputRate  int
	outputRate int
	ratio      float64
	position   float64 // relative to the current block; -1 addresses lastSample
	lastSample int16
}

// NewStream creates a phase-carrying resampler
func NewStream(inputRate, outputRate int) *Stream {
	return &Stream{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Process converts one block, continuing from where the previous block ended
func (s *Stream) Process(pcm []byte) []byte {
	if s.inputRate == s.outputRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	inputSamples := len(pcm) / audio.BytesPerSample
	if inputSamples == 0 {
		return nil
	}

	sampleAt := func(idx int) int16 {
		if idx < 0 {
			return s.lastSample
		}
		return audio.Sample(pcm, idx)
	}

	// Upper bound on outputs: span of (position, inputSamples-1) over ratio, plus one
	capacity := int((float64(inputSamples)-s.position)/s.ratio) + 1
	output := make([]byte, 0, capacity*audio.BytesPerSample)
	var tmp [2]byte

	for s.position < float64(inputSamples-1) {
		idx := int(s.position)
		if s.position < 0 {
			idx = -1
		}
		frac := s.position - float64(idx)

		audio.PutSample(tmp[:], 0, interpolate(sampleAt(idx), sampleAt(idx+1), frac))
		output = append(output, tmp[:]...)

		s.position += s.ratio
	}

	// Re-base so the final input sample becomes index -1 for the next block
	s.position -= float64(inputSamples)
	s.lastSample = audio.Sample(pcm, inputSamples-1)

	return output
}

// Reset clears the carried position and sample
func (s *Stream) Reset() {
	s.position = 0
	s.lastSample = 0
}
