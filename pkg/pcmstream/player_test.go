// ABOUTME: Tests for the session controller and playback writer
// ABOUTME: Drives real readers against httptest sources into a fake output
package pcmstream

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/stream"
)

// Sources are closed through t.Cleanup so they outlive the player cleanup
// registered after them; httptest waits for active handlers on Close.

// finiteSource serves a header and numbered blocks, then ends
func finiteSource(t *testing.T, blocks int) *httptest.Server {
	body := make([]byte, audio.HeaderSize)
	for i := 0; i < blocks; i++ {
		body = append(body, bytes.Repeat([]byte{byte(i + 1)}, audio.ReadBlockSize)...)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// endlessSource streams blocks until the client goes away
func endlessSource(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, audio.HeaderSize))
		block := bytes.Repeat([]byte{0x10, 0x00}, audio.ReadBlockSize/2)
		for {
			if _, err := w.Write(block); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// silentSource sends the header and then nothing
func silentSource(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, audio.HeaderSize))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(out *fakeOutput) Config {
	return Config{
		Output:             out,
		BufferPollInterval: 10 * time.Millisecond,
		RelaunchDelay:      50 * time.Millisecond,
		Stream: stream.Config{
			EOFDelay: time.Minute,
		},
	}
}

func newTestPlayer(t *testing.T, config Config) *Player {
	t.Helper()
	p, err := NewPlayer(config)
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewPlayerValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"min above capacity", Config{Output: newFakeOutput(), QueueCapacity: 2, MinBufferedChunks: 3}},
		{"negative capacity", Config{Output: newFakeOutput(), QueueCapacity: -1}},
		{"unknown resample mode", Config{Output: newFakeOutput(), ResampleMode: "sinc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlayer(tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStartRejectsInvalidURL(t *testing.T) {
	p := newTestPlayer(t, testConfig(newFakeOutput()))

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "example.com/stream.wav"},
		{"unsupported scheme", "ftp://example.com/stream.wav"},
		{"no host", "http:///stream.wav"},
		{"malformed", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Start(tt.url)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("expected ArgumentError, got %T", err)
			}
			if argErr.Code() != "INVALID_ARGUMENT" {
				t.Errorf("unexpected code %q", argErr.Code())
			}
		})
	}

	if err := p.Start(""); err.Error() != "URL is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if p.Status().State != StateIdle {
		t.Errorf("expected rejected start to leave player idle, got %v", p.Status().State)
	}
}

func TestPlayerPlaysChunksInOrder(t *testing.T) {
	srv := finiteSource(t, 6)

	out := newFakeOutput()
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "all chunks written", func() bool {
		return p.Status().ChunksWritten == 6
	})

	data := out.Tracks()[0].Data()
	for i := 0; i < 6; i++ {
		block := data[i*audio.ReadBlockSize : (i+1)*audio.ReadBlockSize]
		if !bytes.Equal(block, bytes.Repeat([]byte{byte(i + 1)}, audio.ReadBlockSize)) {
			t.Fatalf("block %d out of order", i)
		}
	}

	status := p.Status()
	if status.State != StateStreaming || status.Playback != PlaybackPlaying {
		t.Errorf("expected STREAMING/PLAYING, got %v/%v", status.State, status.Playback)
	}
	if status.NegotiatedRate != audio.SourceSampleRate {
		t.Errorf("expected %d Hz, got %d", audio.SourceSampleRate, status.NegotiatedRate)
	}
	if status.ChunksWritten != 6 {
		t.Errorf("expected 6 chunks written, got %d", status.ChunksWritten)
	}
}

func TestWriterHandlesFullDeviceAndWriteErrors(t *testing.T) {
	srv := finiteSource(t, 4)

	out := newFakeOutput()
	out.writes = []writeStep{
		{n: 0},                                // chunk 1: device full
		{n: 100},                              // chunk 1: partial
		{n: -1},                               // chunk 1: remainder
		{err: errors.New("device unplugged")}, // chunk 2: dropped
	}
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "remaining chunks written", func() bool {
		return p.Status().ChunksWritten == 3
	})

	data := out.Tracks()[0].Data()
	want := []byte{1, 3, 4}
	if len(data) != len(want)*audio.ReadBlockSize {
		t.Fatalf("expected %d bytes, got %d", len(want)*audio.ReadBlockSize, len(data))
	}
	for i, marker := range want {
		block := data[i*audio.ReadBlockSize : (i+1)*audio.ReadBlockSize]
		if !bytes.Equal(block, bytes.Repeat([]byte{marker}, audio.ReadBlockSize)) {
			t.Fatalf("block %d: expected chunk %d", i, marker)
		}
	}

	status := p.Status()
	if status.WriteErrors != 1 {
		t.Errorf("expected 1 write error, got %d", status.WriteErrors)
	}
	if status.BytesWritten != int64(len(data)) {
		t.Errorf("expected %d bytes counted, got %d", len(data), status.BytesWritten)
	}
	if status.Playback != PlaybackPlaying {
		t.Errorf("expected PLAYING after a write error, got %v", status.Playback)
	}
	// 3 scripted calls for chunk 1, one failed call for chunk 2, one each for 3 and 4
	if writes := out.Tracks()[0].Writes(); writes != 6 {
		t.Errorf("expected 6 write calls, got %d", writes)
	}
}

func TestTrackConfiguration(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	out.nativeRate = 48000
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "track opened", func() bool { return len(out.Tracks()) == 1 })

	track := out.Tracks()[0]
	cfg := track.config
	if cfg.Format != audio.Mono16(44100) {
		t.Errorf("expected 44100Hz mono 16-bit, got %+v", cfg.Format)
	}
	// One second of audio beats 4x the 1024-byte minimum
	if cfg.BufferSize != 44100*2 {
		t.Errorf("expected buffer of %d bytes, got %d", 44100*2, cfg.BufferSize)
	}
	if !cfg.LowLatency {
		t.Error("expected low-latency hint")
	}

	waitFor(t, "track playing", func() bool { return track.Writes() > 0 })
	calls := track.Calls()
	if !slices.Equal(calls[:3], []string{"volume", "flush", "play"}) {
		t.Errorf("unexpected setup sequence: %v", calls)
	}
	if track.volume != 1.0 {
		t.Errorf("expected full volume, got %f", track.volume)
	}
}

func TestNativeRateFailureUsesSourceRate(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	out.nativeErr = errors.New("no device")
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rate := p.Status().NegotiatedRate; rate != audio.SourceSampleRate {
		t.Errorf("expected source rate, got %d", rate)
	}
}

func TestStopLeavesQueueEmptyAndSilencesDevice(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "playback", func() bool {
		tracks := out.Tracks()
		return len(tracks) == 1 && tracks[0].Writes() > 2
	})

	p.Stop()

	track := out.Tracks()[0]
	writes := track.Writes()

	status := p.Status()
	if status.QueueDepth != 0 {
		t.Errorf("expected empty queue after stop, got %d", status.QueueDepth)
	}
	if status.State != StateStopped {
		t.Errorf("expected STOPPED, got %v", status.State)
	}
	if status.Playback != PlaybackNotStarted {
		t.Errorf("expected NOT_STARTED, got %v", status.Playback)
	}

	time.Sleep(100 * time.Millisecond)
	if track.Writes() != writes {
		t.Errorf("device received %d writes after stop", track.Writes()-writes)
	}

	calls := track.Calls()
	if !slices.Equal(calls[len(calls)-4:], []string{"pause", "flush", "stop", "release"}) {
		t.Errorf("unexpected teardown sequence: %v", calls)
	}
	if track.Released() != 1 {
		t.Errorf("expected a single release, got %d", track.Released())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	p := newTestPlayer(t, testConfig(out))

	// No session yet
	p.Stop()
	p.Stop()

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "track opened", func() bool { return len(out.Tracks()) == 1 })

	p.Stop()
	p.Stop()

	if n := out.Tracks()[0].Released(); n != 1 {
		t.Errorf("expected track released once, got %d", n)
	}
}

func TestDeviceInitFailureKeepsSessionRunning(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	out.openErrs = []error{errors.New("device refused")}

	var mu sync.Mutex
	var errs []error
	config := testConfig(out)
	config.OnError = func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	p := newTestPlayer(t, config)

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "device init error", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	})

	mu.Lock()
	var initErr *DeviceInitError
	if !errors.As(errs[0], &initErr) {
		t.Errorf("expected DeviceInitError, got %v", errs[0])
	}
	mu.Unlock()

	if p.Status().State != StateStreaming {
		t.Errorf("expected session to keep streaming, got %v", p.Status().State)
	}

	// The reader keeps filling the queue and relaunches playback
	waitFor(t, "relaunched playback", func() bool {
		tracks := out.Tracks()
		return len(tracks) == 1 && tracks[0].Writes() > 0
	})

	events := out.Events()
	if events[0] != "open-failed" || events[1] != "open#1" {
		t.Errorf("unexpected device events: %v", events)
	}
	if p.Status().Playback != PlaybackPlaying {
		t.Errorf("expected PLAYING after relaunch, got %v", p.Status().Playback)
	}
}

func TestFailingDeviceReopenIsRateLimited(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	for i := 0; i < 1000; i++ {
		out.openErrs = append(out.openErrs, errors.New("device refused"))
	}

	var mu sync.Mutex
	reported := 0
	config := testConfig(out)
	config.RelaunchDelay = 200 * time.Millisecond
	config.OnError = func(err error) {
		mu.Lock()
		reported++
		mu.Unlock()
	}
	p := newTestPlayer(t, config)

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The reader reports depth on every backpressure wait, so without a
	// holdoff the device would be reopened many times per second
	time.Sleep(time.Second)

	attempts := 0
	for _, e := range out.Events() {
		if e == "open-failed" {
			attempts++
		}
	}
	if attempts < 2 || attempts > 7 {
		t.Errorf("expected 2-7 open attempts in 1s with a 200ms holdoff, got %d", attempts)
	}

	// the last failure may not have been reported yet
	mu.Lock()
	if reported < attempts-1 || reported > attempts {
		t.Errorf("expected one error per failed open, got %d errors for %d opens", reported, attempts)
	}
	mu.Unlock()

	if p.Status().State != StateStreaming {
		t.Errorf("expected session to keep streaming, got %v", p.Status().State)
	}
}

func TestTrackNotPlayingIsReleased(t *testing.T) {
	srv := endlessSource(t)

	out := newFakeOutput()
	out.noPlay = true

	errCh := make(chan error, 16)
	config := testConfig(out)
	config.OnError = func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}
	p := newTestPlayer(t, config)

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNotPlaying) {
			t.Errorf("expected ErrNotPlaying, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}

	waitFor(t, "failed track released", func() bool {
		return out.Tracks()[0].Released() == 1
	})
	if out.Tracks()[0].Writes() != 0 {
		t.Error("expected no writes to a track that never played")
	}
}

func TestStartTwiceReleasesFirstSession(t *testing.T) {
	first := endlessSource(t)
	second := endlessSource(t)

	out := newFakeOutput()
	p := newTestPlayer(t, testConfig(out))

	if err := p.Start(first.URL); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	waitFor(t, "first track", func() bool { return len(out.Tracks()) == 1 })
	firstID := p.Status().SessionID

	if err := p.Start(second.URL); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	// Teardown of the first session completes inside Start
	if out.Tracks()[0].Released() != 1 {
		t.Fatal("first track not released before second session began")
	}

	waitFor(t, "second track", func() bool { return len(out.Tracks()) == 2 })

	events := out.Events()
	release := slices.Index(events, "release#1")
	open := slices.Index(events, "open#2")
	if release < 0 || open < 0 || release > open {
		t.Errorf("expected release#1 before open#2, got %v", events)
	}

	status := p.Status()
	if status.URL != second.URL {
		t.Errorf("expected second URL active, got %s", status.URL)
	}
	if status.SessionID == firstID {
		t.Error("expected a new session ID")
	}
	if status.Generation != 2 {
		t.Errorf("expected generation 2, got %d", status.Generation)
	}
}

func TestReaderExhaustionFailsSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := newFakeOutput()
	states := make(chan State, 32)
	errCh := make(chan error, 4)

	config := testConfig(out)
	config.Stream.Backoff = stream.Backoff{Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 2}
	config.OnStateChange = func(s Status) {
		select {
		case states <- s.State:
		default:
		}
	}
	config.OnError = func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}
	p := newTestPlayer(t, config)

	if err := p.Start(url); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, stream.ErrMaxAttempts) {
			t.Errorf("expected ErrMaxAttempts, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure")
	}

	waitFor(t, "failed state", func() bool { return p.Status().State == StateFailed })
	if p.Status().Error == "" {
		t.Error("expected failure reason in status")
	}

	// Stop after failure is still safe
	p.Stop()
	if p.Status().State != StateFailed {
		t.Errorf("expected FAILED to stick, got %v", p.Status().State)
	}
	if len(out.Tracks()) != 0 {
		t.Error("expected no device to be opened")
	}
}

func TestBufferingTimeoutLeavesPlaybackNotStarted(t *testing.T) {
	srv := silentSource(t)

	out := newFakeOutput()
	config := testConfig(out)
	config.BufferPollAttempts = 3
	p := newTestPlayer(t, config)

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "buffering to give up", func() bool {
		return p.Status().Playback == PlaybackNotStarted && p.Status().ReaderState == "streaming"
	})
	time.Sleep(50 * time.Millisecond)

	if len(out.Tracks()) != 0 {
		t.Error("expected no device without buffered audio")
	}
	if p.Status().State != StateStreaming {
		t.Errorf("expected session to stay streaming, got %v", p.Status().State)
	}
}

func TestStateChangeCallbacks(t *testing.T) {
	srv := endlessSource(t)

	var mu sync.Mutex
	var seen []string
	config := testConfig(newFakeOutput())
	config.OnStateChange = func(s Status) {
		mu.Lock()
		seen = append(seen, s.State.String()+"/"+s.Playback.String())
		mu.Unlock()
	}
	p := newTestPlayer(t, config)

	if err := p.Start(srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "playing", func() bool { return p.Status().Playback == PlaybackPlaying })
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []string{"NEGOTIATING/NOT_STARTED", "STREAMING/PLAYING", "STOPPED/NOT_STARTED"} {
		if !slices.Contains(seen, want) {
			t.Errorf("missing state %s in %v", want, seen)
		}
	}
}

func TestStartAfterClose(t *testing.T) {
	out := newFakeOutput()
	p, err := NewPlayer(testConfig(out))
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !out.closed {
		t.Error("expected output closed")
	}
	if err := p.Start("http://127.0.0.1:1/stream.wav"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
