// ABOUTME: Player error types
// ABOUTME: Argument, device initialization and write errors
package pcmstream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is wrapped by every ArgumentError
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotPlaying means a track did not enter the playing state
	ErrNotPlaying = errors.New("track not playing after start")

	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("player closed")
)

// ArgumentError reports a rejected Start argument
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// Code returns the control API error code
func (e *ArgumentError) Code() string {
	return "INVALID_ARGUMENT"
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// DeviceInitError reports a failed playback attempt; the session keeps running
type DeviceInitError struct {
	SampleRate int
	Err        error
}

func (e *DeviceInitError) Error() string {
	return fmt.Sprintf("audio device init failed at %dHz: %v", e.SampleRate, e.Err)
}

func (e *DeviceInitError) Unwrap() error {
	return e.Err
}

// WriteError reports a chunk lost to a failed device write
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audio write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
