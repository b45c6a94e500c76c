// ABOUTME: In-memory output backend for player tests
// ABOUTME: Records track lifecycle calls and written audio
package pcmstream

import (
	"fmt"
	"sync"

	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/audio/output"
)

type fakeOutput struct {
	mu         sync.Mutex
	nativeRate int
	nativeErr  error
	openErrs   []error     // consumed one per Open
	noPlay     bool        // tracks never report playing
	writes     []writeStep // handed to the next opened track
	tracks     []*fakeTrack
	events     []string
	closed     bool
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{nativeRate: audio.SourceSampleRate}
}

func (o *fakeOutput) Name() string { return "fake" }

func (o *fakeOutput) NativeSampleRate() (int, error) {
	return o.nativeRate, o.nativeErr
}

func (o *fakeOutput) MinBufferSize(format audio.Format) (int, error) {
	return 1024, nil
}

func (o *fakeOutput) Open(cfg output.TrackConfig) (output.Track, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.openErrs) > 0 {
		err := o.openErrs[0]
		o.openErrs = o.openErrs[1:]
		if err != nil {
			o.events = append(o.events, "open-failed")
			return nil, err
		}
	}

	t := &fakeTrack{out: o, id: len(o.tracks) + 1, config: cfg, noPlay: o.noPlay, script: o.writes}
	o.writes = nil
	o.tracks = append(o.tracks, t)
	o.events = append(o.events, fmt.Sprintf("open#%d", t.id))
	return t, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) record(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *fakeOutput) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *fakeOutput) Tracks() []*fakeTrack {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeTrack(nil), o.tracks...)
}

type fakeTrack struct {
	out    *fakeOutput
	id     int
	config output.TrackConfig
	noPlay bool

	mu       sync.Mutex
	script   []writeStep
	state    output.PlayState
	data     []byte
	writes   int
	released int
	calls    []string
	volume   float64
}

func (t *fakeTrack) call(name string) {
	t.calls = append(t.calls, name)
}

func (t *fakeTrack) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released > 0 {
		return 0, output.ErrReleased
	}
	t.writes++
	n := len(p)
	if len(t.script) > 0 {
		step := t.script[0]
		t.script = t.script[1:]
		if step.err != nil {
			return 0, step.err
		}
		if step.n >= 0 && step.n < n {
			n = step.n
		}
	}
	t.data = append(t.data, p[:n]...)
	return n, nil
}

// writeStep scripts one Write call: accept n bytes (all when negative) or
// fail with err
type writeStep struct {
	n   int
	err error
}

func (t *fakeTrack) SetVolume(volume float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call("volume")
	t.volume = volume
	return nil
}

func (t *fakeTrack) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call("flush")
	return nil
}

func (t *fakeTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call("play")
	if !t.noPlay {
		t.state = output.PlayStatePlaying
	}
	return nil
}

func (t *fakeTrack) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call("pause")
	t.state = output.PlayStatePaused
	return nil
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call("stop")
	t.state = output.PlayStateStopped
	return nil
}

func (t *fakeTrack) Release() error {
	t.mu.Lock()
	t.call("release")
	t.released++
	first := t.released == 1
	t.state = output.PlayStateStopped
	t.mu.Unlock()

	if first {
		t.out.record(fmt.Sprintf("release#%d", t.id))
	}
	return nil
}

func (t *fakeTrack) PlayState() output.PlayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTrack) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.data...)
}

func (t *fakeTrack) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

func (t *fakeTrack) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func (t *fakeTrack) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}
