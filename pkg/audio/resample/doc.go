// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit mono PCM between sample rates
// Package resample provides audio sample rate conversion.
//
// Linear converts one block independently and carries no state between
// calls. Stream keeps the fractional read position and the last sample of
// the previous block, so consecutive blocks join without a phase jump.
//
// Example:
//
//	out := resample.Linear(pcm, 8000, 44100)
//
//	s := resample.NewStream(8000, 44100)
//	for block := range blocks {
//	    out := s.Process(block)
//	}
package resample
