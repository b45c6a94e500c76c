// ABOUTME: Session controller for network PCM playback
// ABOUTME: Starts, supervises and tears down reader/writer sessions
package pcmstream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/audio/output"
	"github.com/mch25/pcmstream/pkg/audio/queue"
	"github.com/mch25/pcmstream/pkg/audio/resample"
	"github.com/mch25/pcmstream/pkg/stream"
)

// Resample modes
const (
	ResampleChunk  = "chunk"  // each block resampled on its own
	ResampleStream = "stream" // interpolation phase carried across blocks
)

// Config holds player configuration
type Config struct {
	// Output is the audio device backend (default: oto)
	Output output.Output

	// QueueCapacity is the number of chunks buffered between reader and writer (default: 30)
	QueueCapacity int

	// MinBufferedChunks is the depth required before playback starts (default: 3)
	MinBufferedChunks int

	// BufferPollInterval and BufferPollAttempts bound the initial buffering wait
	// (default: 100ms x 150)
	BufferPollInterval time.Duration
	BufferPollAttempts int

	// IdleWait is the pause after finding the queue empty (default: 10ms)
	IdleWait time.Duration

	// DeviceFullWait is the pause after the device accepts nothing (default: 10ms)
	DeviceFullWait time.Duration

	// RelaunchDelay is the minimum pause before reopening the device after
	// a failed open (default: 1s)
	RelaunchDelay time.Duration

	// ResampleMode is ResampleChunk (default) or ResampleStream
	ResampleMode string

	// Stream configures the reader; URL and rates are filled in per session
	Stream stream.Config

	// OnStateChange is called when the session or playback state changes.
	// It must not call Start or Stop.
	OnStateChange func(Status)

	// OnError is called for device failures and terminal stream failures
	OnError func(error)
}

// Player plays one network PCM stream at a time
type Player struct {
	config Config

	mu      sync.Mutex // serializes Start, Stop and Close
	session atomic.Pointer[session]
	gen     atomic.Uint64
	closed  bool
}

// session owns everything belonging to one Start call
type session struct {
	id  string
	gen uint64
	url string

	// set during negotiation, after the session is visible to Status
	rate   atomic.Int32
	reader atomic.Pointer[stream.Reader]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue *queue.Queue

	running         atomic.Bool
	playbackStarted atomic.Bool
	writerActive    atomic.Bool
	state           atomic.Int32
	playback        atomic.Int32
	lastErr         atomic.Pointer[string]

	// unix nanos before which a failed device is not reopened
	retryAt atomic.Int64

	trackMu  sync.Mutex
	track    output.Track
	released bool

	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
	writeErrors   atomic.Int64

	stopOnce sync.Once
}

// NewPlayer creates a new player with the given configuration
func NewPlayer(config Config) (*Player, error) {
	if config.Output == nil {
		config.Output = output.NewOto(output.Config{})
	}
	if config.QueueCapacity == 0 {
		config.QueueCapacity = queue.DefaultCapacity
	}
	if config.MinBufferedChunks == 0 {
		config.MinBufferedChunks = 3
	}
	if config.BufferPollInterval == 0 {
		config.BufferPollInterval = 100 * time.Millisecond
	}
	if config.BufferPollAttempts == 0 {
		config.BufferPollAttempts = 150
	}
	if config.IdleWait == 0 {
		config.IdleWait = 10 * time.Millisecond
	}
	if config.DeviceFullWait == 0 {
		config.DeviceFullWait = 10 * time.Millisecond
	}
	if config.RelaunchDelay == 0 {
		config.RelaunchDelay = time.Second
	}
	if config.ResampleMode == "" {
		config.ResampleMode = ResampleChunk
	}

	if config.QueueCapacity < 1 {
		return nil, fmt.Errorf("invalid queue capacity: %d", config.QueueCapacity)
	}
	if config.MinBufferedChunks > config.QueueCapacity {
		return nil, fmt.Errorf("min buffered chunks (%d) exceeds queue capacity (%d)",
			config.MinBufferedChunks, config.QueueCapacity)
	}
	if config.ResampleMode != ResampleChunk && config.ResampleMode != ResampleStream {
		return nil, fmt.Errorf("unknown resample mode: %s", config.ResampleMode)
	}

	return &Player{config: config}, nil
}

// Start plays rawURL, stopping any active session first
func (p *Player) Start(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if prev := p.session.Load(); prev != nil {
		p.teardown(prev, StateStopped)
	}

	log.Printf("Starting audio stream from: %s", rawURL)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.New().String(),
		gen:    p.gen.Add(1),
		url:    rawURL,
		ctx:    ctx,
		cancel: cancel,
		queue:  queue.New(p.config.QueueCapacity),
	}
	p.session.Store(s)
	p.setState(s, StateNegotiating)

	rate := p.negotiateRate()
	s.rate.Store(int32(rate))
	log.Printf("Using sample rate: %d Hz (source: %d Hz)", rate, audio.SourceSampleRate)

	readerConfig := p.config.Stream
	readerConfig.URL = rawURL
	readerConfig.SourceRate = audio.SourceSampleRate
	readerConfig.TargetRate = rate
	readerConfig.Resample = p.resampler(rate)
	readerConfig.OnDepth = func(depth int) {
		p.onDepth(s, depth)
	}
	s.reader.Store(stream.NewReader(readerConfig, s.queue))

	s.running.Store(true)
	s.playbackStarted.Store(false)
	p.setState(s, StateStreaming)

	s.wg.Add(1)
	go p.runReader(s)
	p.launchWriter(s)

	return nil
}

// Stop ends the active session; it is safe to call at any time
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.session.Load(); s != nil {
		p.teardown(s, StateStopped)
	}
}

// Close stops playback and releases the output backend
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if s := p.session.Load(); s != nil {
		p.teardown(s, StateStopped)
	}
	return p.config.Output.Close()
}

// Status returns a snapshot of the current session
func (p *Player) Status() Status {
	s := p.session.Load()
	if s == nil {
		return Status{State: StateIdle, QueueCapacity: p.config.QueueCapacity}
	}
	return p.statusOf(s)
}

func (p *Player) statusOf(s *session) Status {
	st := Status{
		SessionID:      s.id,
		Generation:     s.gen,
		URL:            s.url,
		State:          State(s.state.Load()),
		Playback:       PlaybackState(s.playback.Load()),
		NegotiatedRate: int(s.rate.Load()),
		QueueDepth:     s.queue.Len(),
		QueueCapacity:  s.queue.Cap(),
		ChunksWritten:  s.chunksWritten.Load(),
		BytesWritten:   s.bytesWritten.Load(),
		WriteErrors:    s.writeErrors.Load(),
	}
	if r := s.reader.Load(); r != nil {
		stats := r.Stats()
		st.ReconnectAttempts = r.Attempts()
		st.ReaderState = r.State().String()
		st.ChunksRead = stats.Chunks
		st.BackpressureWaits = stats.BackpressureWaits
	}
	if msg := s.lastErr.Load(); msg != nil {
		st.Error = *msg
	}
	return st
}

// negotiateRate picks the session rate from the device's native rate
func (p *Player) negotiateRate() int {
	native, err := p.config.Output.NativeSampleRate()
	if err != nil {
		log.Printf("Failed to query native sample rate, using source rate: %v", err)
		return audio.SourceSampleRate
	}
	log.Printf("Device native sample rate: %d Hz", native)
	return audio.NegotiateRate(native)
}

func (p *Player) resampler(rate int) resample.Func {
	if p.config.ResampleMode == ResampleStream {
		return resample.NewStream(audio.SourceSampleRate, rate).Process
	}
	return resample.ForRates(audio.SourceSampleRate, rate)
}

func (p *Player) runReader(s *session) {
	defer s.wg.Done()

	if err := s.reader.Load().Run(s.ctx); err != nil {
		p.fail(s, err)
	}
}

// onDepth relaunches the writer once enough audio is buffered again
func (p *Player) onDepth(s *session, depth int) {
	if !s.running.Load() || s.playbackStarted.Load() || s.writerActive.Load() {
		return
	}
	if depth < p.config.MinBufferedChunks {
		return
	}
	if time.Now().UnixNano() < s.retryAt.Load() {
		return
	}
	log.Printf("Data available after buffering stopped, restarting playback")
	p.launchWriter(s)
}

// launchWriter starts a writer unless one is already running.
// Callers are the session's own goroutines or Start, so the WaitGroup is
// never at zero while teardown waits on it.
func (p *Player) launchWriter(s *session) {
	if !s.writerActive.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go p.runWriter(s)
}

// fail marks the session failed and tears it down in the background
func (p *Player) fail(s *session, err error) {
	log.Printf("Stream failed: %v", err)
	msg := err.Error()
	s.lastErr.Store(&msg)
	s.running.Store(false)
	p.setState(s, StateFailed)
	p.reportError(s, err)

	go p.teardown(s, StateFailed)
}

// teardown cancels both tasks, waits for them, then releases the track and
// clears the queue. Concurrent callers block until the first one finishes.
func (p *Player) teardown(s *session, final State) {
	s.stopOnce.Do(func() {
		log.Printf("Stopping audio stream")

		s.running.Store(false)
		s.cancel()
		s.wg.Wait()

		s.releaseTrack()
		s.queue.Clear()
		s.playbackStarted.Store(false)
		p.setPlayback(s, PlaybackNotStarted)

		if State(s.state.Load()) != StateFailed {
			p.setState(s, final)
		}
	})
}

func (p *Player) setState(s *session, state State) {
	if State(s.state.Swap(int32(state))) == state {
		return
	}
	p.notify(s)
}

func (p *Player) setPlayback(s *session, state PlaybackState) {
	if PlaybackState(s.playback.Swap(int32(state))) == state {
		return
	}
	p.notify(s)
}

// notify reports changes of the current session only
func (p *Player) notify(s *session) {
	if p.config.OnStateChange == nil || p.session.Load() != s {
		return
	}
	p.config.OnStateChange(p.statusOf(s))
}

func (p *Player) reportError(s *session, err error) {
	if p.config.OnError == nil || p.session.Load() != s {
		return
	}
	p.config.OnError(err)
}

// setTrack hands a newly opened track to the session; it fails once the
// session has released its device, and the caller must release the track
func (s *session) setTrack(t output.Track) bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	if s.released {
		return false
	}
	s.track = t
	return true
}

// dropTrack releases a track the writer gave up on
func (s *session) dropTrack(t output.Track) {
	s.trackMu.Lock()
	if s.track == t {
		s.track = nil
	}
	s.trackMu.Unlock()

	if err := t.Release(); err != nil {
		log.Printf("Error releasing audio track: %v", err)
	}
}

// releaseTrack stops and frees the session's track exactly once
func (s *session) releaseTrack() {
	s.trackMu.Lock()
	t := s.track
	s.track = nil
	s.released = true
	s.trackMu.Unlock()

	if t == nil {
		return
	}

	for _, step := range []struct {
		name string
		fn   func() error
	}{
		{"pause", t.Pause},
		{"flush", t.Flush},
		{"stop", t.Stop},
		{"release", t.Release},
	} {
		if err := step.fn(); err != nil && !errors.Is(err, output.ErrReleased) {
			log.Printf("Error stopping audio track (%s): %v", step.name, err)
		}
	}
}

// validateURL accepts absolute http and https URLs
func validateURL(rawURL string) error {
	if rawURL == "" {
		return &ArgumentError{Message: "URL is required"}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ArgumentError{Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ArgumentError{Message: fmt.Sprintf("unsupported URL scheme: %q", u.Scheme)}
	}
	if u.Host == "" {
		return &ArgumentError{Message: "URL has no host"}
	}
	return nil
}
