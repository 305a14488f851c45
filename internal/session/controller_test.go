package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iurynex-aura/internal/audio/capture"
	"iurynex-aura/internal/audio/codec"
	"iurynex-aura/internal/audio/playback"
	"iurynex-aura/internal/live"
)

// microphone

type fakeStream struct {
	mu      sync.Mutex
	onBlock func([]float32)
	frames  int
	stops   int
}

func (s *fakeStream) Start(blockFrames int, onBlock func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = blockFrames
	s.onBlock = onBlock
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeStream) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onBlock != nil
}

type fakeMic struct {
	err    error
	stream *fakeStream
}

func (m *fakeMic) Acquire(context.Context) (capture.Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

// speaker

type fakeSource struct {
	once    sync.Once
	onEnded func()
	stopped bool
}

func (s *fakeSource) Stop() {
	s.stopped = true
	s.finish()
}

func (s *fakeSource) finish() {
	s.once.Do(func() {
		if s.onEnded != nil {
			go s.onEnded()
		}
	})
}

type fakeOutput struct {
	mu      sync.Mutex
	sources []*fakeSource
	closes  int
}

func (o *fakeOutput) CurrentTime() float64 { return 0 }

func (o *fakeOutput) Schedule(_ *codec.Buffer, _ float64, onEnded func()) (playback.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{onEnded: onEnded}
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

type fakeSpeakers struct {
	out   *fakeOutput
	opens int
}

func (d *fakeSpeakers) Open(context.Context) (playback.Output, error) {
	d.opens++
	return d.out, nil
}

// realtime session

type fakeHandle struct {
	mu        sync.Mutex
	handler   func(live.Event)
	listening chan struct{}
	sent      chan codec.MediaBlob
	closes    int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{listening: make(chan struct{}), sent: make(chan codec.MediaBlob, 8)}
}

func (h *fakeHandle) ID() string { return "test-session" }

func (h *fakeHandle) Listen(handler func(live.Event)) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
	close(h.listening)
}

func (h *fakeHandle) SendRealtimeInput(blob codec.MediaBlob) error {
	h.sent <- blob
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) emit(ev live.Event) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	handler(ev)
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

type fakeDialer struct {
	err    error
	handle *fakeHandle
	dials  int
}

func (d *fakeDialer) Dial(context.Context) (Handle, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.handle, nil
}

type rig struct {
	c        *Controller
	stream   *fakeStream
	mic      *fakeMic
	out      *fakeOutput
	speakers *fakeSpeakers
	handle   *fakeHandle
	dialer   *fakeDialer

	mu     sync.Mutex
	states []State
}

func newRig() *rig {
	r := &rig{stream: &fakeStream{}, out: &fakeOutput{}, handle: newFakeHandle()}
	r.mic = &fakeMic{stream: r.stream}
	r.speakers = &fakeSpeakers{out: r.out}
	r.dialer = &fakeDialer{handle: r.handle}
	r.c = NewController(r.mic, r.speakers, r.dialer, WithObserver(func(s Snapshot) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if n := len(r.states); n == 0 || r.states[n-1] != s.State {
			r.states = append(r.states, s.State)
		}
	}))
	return r
}

func (r *rig) stateTrail() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// start runs Start until it blocks on the open event, then returns the
// channel Start's result arrives on.
func (r *rig) start(t *testing.T, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.c.Start(ctx) }()
	select {
	case <-r.handle.listening:
	case <-time.After(2 * time.Second):
		t.Fatal("session never listened")
	}
	return done
}

func (r *rig) activate(t *testing.T) {
	t.Helper()
	done := r.start(t, context.Background())
	r.handle.emit(live.Event{Type: live.EventOpen})
	if err := wait(t, done); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	return nil
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func speech(frames int) string {
	return codec.EncodeChunk(make([]float32, frames)).Data
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartGoesThroughConnecting(t *testing.T) {
	r := newRig()
	done := r.start(t, context.Background())

	if s := r.c.Snapshot(); s.State != StateConnecting {
		t.Fatalf("before open: %v", s.State)
	}
	if r.stream.started() {
		t.Fatal("microphone wired before open")
	}

	r.handle.emit(live.Event{Type: live.EventOpen})
	if err := wait(t, done); err != nil {
		t.Fatal(err)
	}

	s := r.c.Snapshot()
	if s.State != StateActive || s.Status != playback.StatusListening || s.SessionID != "test-session" {
		t.Fatalf("snapshot = %+v", s)
	}
	if want := []State{StateConnecting, StateActive}; !equalStates(r.stateTrail(), want) {
		t.Fatalf("states = %v, want %v", r.stateTrail(), want)
	}
	if r.stream.frames != 4096 {
		t.Fatalf("block size = %d", r.stream.frames)
	}

	r.stream.onBlock([]float32{0.5})
	select {
	case blob := <-r.handle.sent:
		if blob != codec.EncodeChunk([]float32{0.5}) {
			t.Fatalf("sent %+v", blob)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("captured block never sent")
	}
	r.c.Stop()
}

func TestMicrophoneDeniedLeavesIdle(t *testing.T) {
	r := newRig()
	r.mic.err = capture.ErrMicrophoneUnavailable

	err := r.c.Start(context.Background())
	if !errors.Is(err, ErrConnect) || !errors.Is(err, capture.ErrMicrophoneUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if s := r.c.Snapshot(); s.State != StateIdle || s.SessionID != "" || s.Error == "" {
		t.Fatalf("snapshot = %+v", s)
	}
	if r.c.handle != nil {
		t.Fatal("session handle retained")
	}
	if r.dialer.dials != 0 || r.speakers.opens != 0 {
		t.Fatal("setup continued after microphone failure")
	}
	if want := []State{StateConnecting, StateIdle}; !equalStates(r.stateTrail(), want) {
		t.Fatalf("states = %v", r.stateTrail())
	}
}

func TestDialFailureReleasesEverything(t *testing.T) {
	r := newRig()
	r.dialer.err = errors.New("connection refused")

	if err := r.c.Start(context.Background()); !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v", err)
	}
	if r.stream.stops != 1 || r.out.closes != 1 {
		t.Fatalf("stream stops=%d output closes=%d", r.stream.stops, r.out.closes)
	}
	if s := r.c.Snapshot(); s.State != StateIdle {
		t.Fatalf("state = %v", s.State)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := newRig()
	r.c.Stop()
	if len(r.stateTrail()) != 0 {
		t.Fatal("Stop while idle changed state")
	}

	r.activate(t)
	r.c.Stop()
	r.c.Stop()

	if r.stream.stops != 1 || r.out.closes != 1 || r.handle.closeCount() != 1 {
		t.Fatalf("releases: stream=%d output=%d handle=%d", r.stream.stops, r.out.closes, r.handle.closeCount())
	}
	if s := r.c.Snapshot(); s.State != StateIdle || s.Status != playback.StatusIdle || s.Error != "" {
		t.Fatalf("snapshot = %+v", s)
	}
	if r.c.CaptureStats() != (capture.Stats{}) {
		t.Fatal("pipeline still attached")
	}
}

func TestStopWhileConnectingIgnoresLateOpen(t *testing.T) {
	r := newRig()
	done := r.start(t, context.Background())

	r.c.Stop()
	if err := wait(t, done); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Start = %v", err)
	}

	r.handle.emit(live.Event{Type: live.EventOpen})
	if s := r.c.Snapshot(); s.State != StateIdle {
		t.Fatalf("late open reactivated: %v", s.State)
	}
	if r.stream.started() {
		t.Fatal("late open started the microphone")
	}
	for _, st := range r.stateTrail() {
		if st == StateActive {
			t.Fatal("reached ACTIVE without a live open")
		}
	}
}

func TestStartWhileBusy(t *testing.T) {
	r := newRig()
	r.activate(t)
	defer r.c.Stop()
	if err := r.c.Start(context.Background()); err != ErrAlreadyActive {
		t.Fatalf("err = %v", err)
	}
}

func TestContextCanceledWhileWaitingForOpen(t *testing.T) {
	r := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	done := r.start(t, ctx)
	cancel()

	err := wait(t, done)
	if !errors.Is(err, ErrConnect) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if r.c.Snapshot().State != StateIdle || r.handle.closeCount() != 1 {
		t.Fatal("not torn down")
	}
}

func TestSpeechAndInterruption(t *testing.T) {
	r := newRig()
	r.activate(t)
	defer r.c.Stop()

	r.handle.emit(live.Event{Type: live.EventMessage, Message: &live.Message{
		Audio: []string{speech(240), "%%%", speech(240)},
	}})
	if s := r.c.Snapshot(); s.Status != playback.StatusSpeaking {
		t.Fatalf("status = %v", s.Status)
	}
	if len(r.out.sources) != 2 {
		t.Fatalf("%d sources scheduled, want 2 (bad fragment dropped)", len(r.out.sources))
	}

	r.handle.emit(live.Event{Type: live.EventMessage, Message: &live.Message{Interrupted: true}})
	if s := r.c.Snapshot(); s.State != StateActive || s.Status != playback.StatusListening {
		t.Fatalf("after interrupt: %+v", s)
	}
	for i, src := range r.out.sources {
		if !src.stopped {
			t.Fatalf("source %d still playing", i)
		}
	}
}

func TestPlaybackEndReturnsToListening(t *testing.T) {
	r := newRig()
	r.activate(t)
	defer r.c.Stop()

	r.handle.emit(live.Event{Type: live.EventMessage, Message: &live.Message{Audio: []string{speech(240)}}})
	r.out.mu.Lock()
	src := r.out.sources[0]
	r.out.mu.Unlock()

	src.finish()
	eventually(t, func() bool { return r.c.Snapshot().Status == playback.StatusListening })
}

func TestRemoteFailureTearsDown(t *testing.T) {
	tests := []struct {
		name string
		ev   live.Event
	}{
		{"error", live.Event{Type: live.EventError, Err: errors.New("network down")}},
		{"close", live.Event{Type: live.EventClose}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			r.activate(t)

			r.handle.emit(tt.ev)
			s := r.c.Snapshot()
			if s.State != StateIdle || s.Error == "" {
				t.Fatalf("snapshot = %+v", s)
			}
			if r.stream.stops != 1 || r.handle.closeCount() != 1 || r.out.closes != 1 {
				t.Fatal("resources not released")
			}

			// a trailing event from the dead session is ignored
			r.handle.emit(live.Event{Type: live.EventOpen})
			if r.c.Snapshot().State != StateIdle {
				t.Fatal("stale event revived the session")
			}
		})
	}
}

func TestRestartAfterStop(t *testing.T) {
	r := newRig()
	r.activate(t)
	r.c.Stop()

	r.handle = newFakeHandle()
	r.dialer.handle = r.handle
	r.activate(t)
	defer r.c.Stop()
	if r.c.Snapshot().State != StateActive {
		t.Fatal("second session not active")
	}
}
