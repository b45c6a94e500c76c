// ABOUTME: Error types for the stream reader
// ABOUTME: Connection failures, clean end of stream and attempt exhaustion
package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamEnd marks a clean end of data; the reader reconnects after it
	ErrStreamEnd = errors.New("stream: end of data")

	// ErrMaxAttempts is returned by Run once reconnecting has been given up
	ErrMaxAttempts = errors.New("stream: max reconnect attempts reached")

	// ErrShortHeader means the body ended before the container header
	ErrShortHeader = errors.New("stream: body shorter than header")

	// ErrReadTimeout means no data arrived within the read timeout
	ErrReadTimeout = errors.New("stream: read timeout")
)

// ConnectionError describes a failed connection attempt
type ConnectionError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connection to %s failed: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
