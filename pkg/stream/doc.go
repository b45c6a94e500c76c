// ABOUTME: Network PCM stream reader package
// ABOUTME: Connects to an HTTP source, strips the header and feeds resampled chunks downstream
// Package stream reads a raw PCM stream from an HTTP endpoint.
//
// The body is a fixed 44-byte container header followed by 16-bit signed
// little-endian mono samples at 8 kHz. The Reader discards the header,
// reads fixed-size blocks, resamples each block to the negotiated rate
// and pushes it into a Sink. A full sink makes the reader wait and retry;
// chunks are never dropped.
//
// Failed connections are retried with a linear backoff capped at 10s.
// After 50 consecutive failures Run returns ErrMaxAttempts.
//
// Example:
//
//	r := stream.NewReader(stream.Config{
//	    URL:        "http://192.168.1.20:8080/stream.wav",
//	    TargetRate: 44100,
//	}, q)
//	err := r.Run(ctx)
package stream
