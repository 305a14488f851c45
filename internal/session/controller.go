// Package session owns one live voice conversation: microphone, speaker and
// the realtime connection, and the state machine that ties them together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"iurynex-aura/internal/audio/capture"
	"iurynex-aura/internal/audio/codec"
	"iurynex-aura/internal/audio/config"
	"iurynex-aura/internal/audio/playback"
	"iurynex-aura/internal/live"

	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateActive     State = "ACTIVE"
)

var (
	ErrAlreadyActive = errors.New("live session already started")
	ErrConnect       = errors.New("live session failed to start")
	ErrCanceled      = errors.New("stopped while connecting")
	ErrRemoteClosed  = errors.New("live session closed by server")
)

// Handle is an open realtime session. Only the controller closes it.
type Handle interface {
	ID() string
	Listen(handler func(live.Event))
	SendRealtimeInput(blob codec.MediaBlob) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Handle, error)
}

type liveDialer struct{ d *live.Dialer }

// LiveDialer adapts a Gemini Live dialer.
func LiveDialer(d *live.Dialer) Dialer { return liveDialer{d: d} }

func (l liveDialer) Dial(ctx context.Context) (Handle, error) {
	s, err := l.d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot is the externally visible state of the controller.
type Snapshot struct {
	State     State           `json:"state"`
	Status    playback.Status `json:"status"`
	SessionID string          `json:"sessionId,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Observer receives every state or status change. It runs with the
// controller locked: it must not block and must not call Start or Stop.
type Observer func(Snapshot)

type Controller struct {
	mic      capture.Device
	speakers playback.Device
	dialer   Dialer
	audio    config.AudioConfig
	observer Observer

	mu     sync.Mutex
	gen    uint64 // bumped on every teardown, stale callbacks compare against it
	state  State
	status playback.Status
	ready  chan struct{} // closed when the pending Start resolves
	cause  error

	stream capture.Stream
	out    playback.Output
	sched  *playback.Scheduler
	handle Handle
	pipe   atomic.Pointer[capture.Pipeline]

	snap atomic.Pointer[Snapshot]
}

type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func WithAudioConfig(ac config.AudioConfig) Option {
	return func(c *Controller) { c.audio = ac }
}

func NewController(mic capture.Device, speakers playback.Device, dialer Dialer, opts ...Option) *Controller {
	c := &Controller{
		mic:      mic,
		speakers: speakers,
		dialer:   dialer,
		audio:    config.NewLiveConfig(),
		state:    StateIdle,
		status:   playback.StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap.Store(&Snapshot{State: StateIdle, Status: playback.StatusIdle})
	return c
}

// Snapshot never blocks.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// CaptureStats reports the current session's outbound audio, zero when idle.
func (c *Controller) CaptureStats() capture.Stats {
	if p := c.pipe.Load(); p != nil {
		return p.Stats()
	}
	return capture.Stats{}
}

// Start opens a live session and returns once it is ACTIVE. Any failure
// before that leaves the controller IDLE with nothing held, and is returned
// wrapped in ErrConnect.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.gen++
	gen := c.gen
	ready := make(chan struct{})
	c.ready = ready
	c.cause = nil
	c.setState(StateConnecting)
	c.mu.Unlock()

	log.Info().Msg("Starting live session")

	stream, err := c.mic.Acquire(ctx)
	if err != nil {
		return c.fail(gen, err)
	}
	if !c.adopt(gen, func() { c.stream = stream }) {
		_ = stream.Stop()
		return fmt.Errorf("%w: %w", ErrConnect, ErrCanceled)
	}

	out, err := c.speakers.Open(ctx)
	if err != nil {
		return c.fail(gen, err)
	}
	if !c.adopt(gen, func() {
		c.out = out
		c.sched = playback.NewScheduler(out, int(c.audio.OutputSampleRate), int(c.audio.Channels),
			playback.WithDispatch(func(fn func()) { c.post(gen, fn) }),
			playback.WithStatusHook(c.setStatus),
		)
	}) {
		_ = out.Close()
		return fmt.Errorf("%w: %w", ErrConnect, ErrCanceled)
	}

	handle, err := c.dialer.Dial(ctx)
	if err != nil {
		return c.fail(gen, err)
	}
	if !c.adopt(gen, func() { c.handle = handle }) {
		_ = handle.Close()
		return fmt.Errorf("%w: %w", ErrConnect, ErrCanceled)
	}
	handle.Listen(func(ev live.Event) { c.dispatch(gen, ev) })

	select {
	case <-ready:
	case <-ctx.Done():
		c.mu.Lock()
		if c.gen == gen {
			c.teardown(ctx.Err())
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == StateActive {
		return nil
	}
	if c.gen == gen+1 && c.cause != nil {
		return fmt.Errorf("%w: %w", ErrConnect, c.cause)
	}
	return fmt.Errorf("%w: %w", ErrConnect, ErrCanceled)
}

// Stop tears the session down from any state. Calling it while IDLE does
// nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	log.Info().Str("state", string(c.state)).Msg("Stopping live session")
	c.teardown(nil)
}

// adopt stores a freshly acquired resource unless the attempt was canceled.
func (c *Controller) adopt(gen uint64, store func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	store()
	return true
}

func (c *Controller) fail(gen uint64, err error) error {
	log.Error().Err(err).Msg("Live session setup failed")
	c.mu.Lock()
	if c.gen == gen {
		c.teardown(err)
	}
	c.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrConnect, err)
}

// post runs fn on the controller unless the session it belongs to is gone.
func (c *Controller) post(gen uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	fn()
}

// dispatch is the single entry point for realtime session events.
func (c *Controller) dispatch(gen uint64, ev live.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		log.Debug().Str("event", ev.Type.String()).Msg("ignoring event from a finished session")
		return
	}

	switch ev.Type {
	case live.EventOpen:
		c.activate()
	case live.EventMessage:
		if c.state != StateActive || ev.Message == nil {
			return
		}
		for _, frag := range ev.Message.Audio {
			if err := c.sched.OnFragment(frag); err != nil {
				log.Warn().Err(err).Msg("Dropping speech fragment")
			}
		}
		if ev.Message.Interrupted {
			c.sched.OnInterrupted()
		}
		if len(ev.Message.Text) > 0 {
			log.Debug().Strs("text", ev.Message.Text).Msg("Model text")
		}
		if ev.Message.TurnComplete {
			log.Debug().Str("status", string(c.status)).Msg("Model turn complete")
		}
	case live.EventError:
		log.Error().Err(ev.Err).Msg("Live session error")
		c.teardown(ev.Err)
	case live.EventClose:
		cause := ev.Err
		if cause == nil {
			cause = ErrRemoteClosed
		}
		log.Info().Err(ev.Err).Msg("Live session closed")
		c.teardown(cause)
	}
}

func (c *Controller) activate() {
	if c.state != StateConnecting {
		return
	}
	pipe := capture.NewPipeline(c.handle, c.audio.QueueSize)
	go pipe.Run()
	if err := c.stream.Start(c.audio.BlockFrames, pipe.Push); err != nil {
		pipe.Close()
		log.Error().Err(err).Msg("Microphone failed to start")
		c.teardown(err)
		return
	}
	c.pipe.Store(pipe)

	c.setState(StateActive)
	c.sched.Begin()
	if c.ready != nil {
		close(c.ready)
		c.ready = nil
	}
	log.Info().Str("session", c.handle.ID()).Msg("Live session active")
}

// teardown releases everything the current session holds. Caller holds mu.
func (c *Controller) teardown(cause error) {
	c.gen++
	c.cause = cause

	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			log.Warn().Err(err).Msg("Microphone release failed")
		}
		c.stream = nil
	}
	if p := c.pipe.Swap(nil); p != nil {
		p.Close()
		st := p.Stats()
		log.Debug().Uint64("sent", st.Sent).Uint64("dropped", st.Dropped).Uint64("failed", st.Failed).Msg("Capture pipeline closed")
	}
	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}

	// one notification for the whole teardown
	c.state = StateIdle
	c.status = playback.StatusIdle
	if c.sched != nil {
		c.sched.Reset()
		c.sched = nil
	}
	if c.out != nil {
		if err := c.out.Close(); err != nil {
			log.Warn().Err(err).Msg("Speaker release failed")
		}
		c.out = nil
	}
	c.publish()

	if c.ready != nil {
		close(c.ready)
		c.ready = nil
	}
}

func (c *Controller) setState(st State) {
	if c.state == st {
		return
	}
	c.state = st
	c.publish()
}

func (c *Controller) setStatus(st playback.Status) {
	if c.status == st {
		return
	}
	c.status = st
	c.publish()
}

func (c *Controller) publish() {
	snap := Snapshot{State: c.state, Status: c.status}
	if c.handle != nil {
		snap.SessionID = c.handle.ID()
	}
	if c.state == StateIdle && c.cause != nil {
		snap.Error = c.cause.Error()
	}
	c.snap.Store(&snap)
	if c.observer != nil {
		c.observer(snap)
	}
}
