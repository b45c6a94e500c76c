// ABOUTME: Session and playback states
// ABOUTME: State enums and the read-only status snapshot
package pcmstream

import "fmt"

// State is the session state
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateStreaming
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateStreaming:
		return "STREAMING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// PlaybackState is the writer sub-state of a streaming session
type PlaybackState int32

const (
	PlaybackNotStarted PlaybackState = iota
	PlaybackBuffering
	PlaybackPlaying
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackNotStarted:
		return "NOT_STARTED"
	case PlaybackBuffering:
		return "BUFFERING"
	case PlaybackPlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int32(s))
	}
}

// MarshalText encodes the playback state by name
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a playback state name
func (s *PlaybackState) UnmarshalText(text []byte) error {
	for st := PlaybackNotStarted; st <= PlaybackPlaying; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

// Status is a snapshot of the current session
type Status struct {
	SessionID  string        `json:"sessionId,omitempty"`
	Generation uint64        `json:"generation,omitempty"`
	URL        string        `json:"url,omitempty"`
	State      State         `json:"state"`
	Playback   PlaybackState `json:"playback"`

	NegotiatedRate    int    `json:"negotiatedRate,omitempty"`
	QueueDepth        int    `json:"queueDepth"`
	QueueCapacity     int    `json:"queueCapacity"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	ReaderState       string `json:"readerState,omitempty"`

	ChunksRead        int64 `json:"chunksRead"`
	ChunksWritten     int64 `json:"chunksWritten"`
	BytesWritten      int64 `json:"bytesWritten"`
	WriteErrors       int64 `json:"writeErrors"`
	BackpressureWaits int64 `json:"backpressureWaits"`

	Error string `json:"error,omitempty"`
}
