// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Chunk and Format types, PCM constants and rate negotiation
// Package audio provides the PCM types shared by the streaming pipeline.
//
// The pipeline carries a single wire format: 16-bit signed little-endian mono
// PCM. This package defines:
//   - Chunk: an immutable block of whole samples moved through the pipeline
//   - Format: the output format a device is opened with
//   - NegotiateRate: picks the playback rate from a device's native rate
//
// Example:
//
//	rate := audio.NegotiateRate(48000) // 44100
//	format := audio.Format{SampleRate: rate, Channels: 1, BitDepth: 16}
//	seconds := format.Duration(len(chunk))
package audio
