// ABOUTME: HTTP stream reader with reconnect and backpressure
// ABOUTME: Produces resampled PCM chunks into a bounded sink
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/audio/resample"
)

// State describes what the reader is doing
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnectWait
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnectWait:
		return "reconnect-wait"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sink receives chunks; TryEnqueue must not block
type Sink interface {
	TryEnqueue(c audio.Chunk) bool
	Len() int
}

// Config holds reader configuration
type Config struct {
	// URL is the HTTP(S) endpoint of the stream
	URL string

	// SourceRate is the rate of the incoming PCM (default: 8000)
	SourceRate int

	// TargetRate is the negotiated playback rate (default: SourceRate)
	TargetRate int

	// HeaderSize is the number of leading bytes discarded (default: 44)
	HeaderSize int

	// BlockSize is the network read unit in bytes (default: 8192)
	BlockSize int

	ConnectTimeout   time.Duration // dial and TLS handshake (default: 10s)
	ReadTimeout      time.Duration // maximum silence between reads (default: 30s)
	BackpressureWait time.Duration // wait before retrying a full sink (default: 20ms)
	EOFDelay         time.Duration // wait before reconnecting after a clean end (default: 500ms)

	Backoff Backoff

	// Resample converts each block; nil uses resample.Linear between the rates
	Resample resample.Func

	// Client overrides the HTTP client built from the timeouts
	Client *http.Client

	// OnDepth is called with the sink depth after every enqueue and while
	// waiting on a full sink
	OnDepth func(depth int)

	// OnState is called when the reader changes state
	OnState func(State)
}

// Stats contains reader counters
type Stats struct {
	Connections       int64
	Failures          int64
	Chunks            int64
	Bytes             int64
	BackpressureWaits int64
}

// Reader pulls a PCM stream into a Sink until its context ends
type Reader struct {
	config Config
	sink   Sink
	client *http.Client

	state    atomic.Int32
	attempts atomic.Int32

	connections atomic.Int64
	failures    atomic.Int64
	chunks      atomic.Int64
	bytes       atomic.Int64
	waits       atomic.Int64
}

// NewReader creates a reader feeding sink
func NewReader(config Config, sink Sink) *Reader {
	if config.SourceRate == 0 {
		config.SourceRate = audio.SourceSampleRate
	}
	if config.TargetRate == 0 {
		config.TargetRate = config.SourceRate
	}
	if config.HeaderSize == 0 {
		config.HeaderSize = audio.HeaderSize
	}
	if config.BlockSize == 0 {
		config.BlockSize = audio.ReadBlockSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.BackpressureWait == 0 {
		config.BackpressureWait = 20 * time.Millisecond
	}
	if config.EOFDelay == 0 {
		config.EOFDelay = 500 * time.Millisecond
	}
	if config.Backoff == (Backoff{}) {
		config.Backoff = DefaultBackoff()
	}
	if config.Resample == nil {
		config.Resample = resample.ForRates(config.SourceRate, config.TargetRate)
	}

	client := config.Client
	if client == nil {
		client = newHTTPClient(config.ConnectTimeout)
	}

	return &Reader{
		config: config,
		sink:   sink,
		client: client,
	}
}

// newHTTPClient bounds connection setup; reads are bounded by the idle timer
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: connectTimeout,
		},
	}
}

// Run streams until ctx is cancelled (returning nil) or reconnect attempts
// are exhausted (returning an error wrapping ErrMaxAttempts).
func (r *Reader) Run(ctx context.Context) error {
	defer r.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := r.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, ErrStreamEnd) {
			log.Printf("Stream ended, reconnecting in %v", r.config.EOFDelay)
			r.setState(StateReconnectWait)
			if !sleep(ctx, r.config.EOFDelay) {
				return nil
			}
			continue
		}

		attempts := int(r.attempts.Add(1))
		r.failures.Add(1)
		log.Printf("Stream error (attempt %d): %v", attempts, err)

		if r.config.Backoff.Exhausted(attempts) {
			log.Printf("Max reconnection attempts reached")
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttempts, attempts, err)
		}

		delay := r.config.Backoff.Delay(attempts)
		log.Printf("Reconnecting in %v...", delay)
		r.setState(StateReconnectWait)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// connect runs a single connection attempt. It returns ErrStreamEnd when the
// body ends cleanly and a ConnectionError for anything else.
func (r *Reader) connect(ctx context.Context) error {
	r.setState(StateConnecting)
	log.Printf("Connecting to audio stream %s (attempt %d)", r.config.URL, r.Attempts()+1)

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Any read that stays silent past ReadTimeout aborts the attempt
	var timedOut atomic.Bool
	idle := time.AfterFunc(r.config.ReadTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer idle.Stop()

	connErr := func(status int, err error) error {
		if timedOut.Load() {
			err = ErrReadTimeout
		}
		return &ConnectionError{URL: r.config.URL, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, r.config.URL, nil)
	if err != nil {
		return connErr(0, err)
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := r.client.Do(req)
	if err != nil {
		return connErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return connErr(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	hdr := make([]byte, r.config.HeaderSize)
	if _, err := io.ReadFull(resp.Body, hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrShortHeader
		}
		return connErr(0, err)
	}
	idle.Stop()

	r.attempts.Store(0)
	r.connections.Add(1)
	r.setState(StateStreaming)
	log.Printf("Connected, header skipped: %d bytes", len(hdr))
	inspectHeader(hdr, r.config.SourceRate)

	buf := make([]byte, r.config.BlockSize)
	for {
		idle.Reset(r.config.ReadTimeout)
		n, err := io.ReadFull(resp.Body, buf)
		idle.Stop()

		if n > 0 {
			if qerr := r.enqueue(ctx, buf[:n]); qerr != nil {
				return qerr
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return ErrStreamEnd
		default:
			return connErr(0, err)
		}
	}
}

// enqueue resamples one block and waits for space in the sink
func (r *Reader) enqueue(ctx context.Context, block []byte) error {
	n := audio.EvenLength(len(block))
	if n == 0 {
		return nil
	}

	chunk := audio.Chunk(r.config.Resample(block[:n]))
	if len(chunk) == 0 {
		return nil
	}

	for !r.sink.TryEnqueue(chunk) {
		r.waits.Add(1)
		// A full sink still counts as a depth event so a stalled consumer can be restarted
		r.reportDepth()
		if !sleep(ctx, r.config.BackpressureWait) {
			return ctx.Err()
		}
	}

	r.chunks.Add(1)
	r.bytes.Add(int64(len(chunk)))

	r.reportDepth()
	return nil
}

func (r *Reader) reportDepth() {
	if r.config.OnDepth != nil {
		r.config.OnDepth(r.sink.Len())
	}
}

func (r *Reader) setState(s State) {
	if State(r.state.Swap(int32(s))) == s {
		return
	}
	if r.config.OnState != nil {
		r.config.OnState(s)
	}
}

// State returns the current reader state
func (r *Reader) State() State {
	return State(r.state.Load())
}

// Attempts returns the number of consecutive failed connections
func (r *Reader) Attempts() int {
	return int(r.attempts.Load())
}

// Stats returns reader counters
func (r *Reader) Stats() Stats {
	return Stats{
		Connections:       r.connections.Load(),
		Failures:          r.failures.Load(),
		Chunks:            r.chunks.Load(),
		Bytes:             r.bytes.Load(),
		BackpressureWaits: r.waits.Load(),
	}
}

// sleep waits for d or until ctx is done, reporting whether the wait completed
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
