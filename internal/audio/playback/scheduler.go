package playback

import (
	"fmt"

	"iurynex-aura/internal/audio/codec"

	"github.com/rs/zerolog/log"
)

// Status is what the assistant side of a live session is doing.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusListening Status = "LISTENING"
	StatusSpeaking  Status = "SPEAKING"
)

func (s Status) String() string { return string(s) }

// Output is an audio device with its own monotonically increasing clock.
type Output interface {
	// CurrentTime is the device clock in seconds.
	CurrentTime() float64
	// Schedule plays buf starting at device time at (or immediately if at is
	// already in the past). onEnded is called once when the source finished
	// or was stopped, on another goroutine: never from inside Schedule or
	// Source.Stop.
	Schedule(buf *codec.Buffer, at float64, onEnded func()) (Source, error)
	Close() error
}

type Source interface {
	Stop()
}

type scheduled struct {
	src        Source
	start, end float64
}

// Scheduler plays streamed speech fragments back to back.
//
// It is not safe for concurrent use. Every method, including the ended hooks
// it hands to the Output, must run on one logical thread; dispatch is how the
// hooks get back onto it.
type Scheduler struct {
	out        Output
	sampleRate int
	channels   int
	dispatch   func(func())
	onStatus   func(Status)

	status Status
	cursor float64
	active map[uint64]scheduled
	nextID uint64
}

type SchedulerOption func(*Scheduler)

// WithDispatch routes playback-ended hooks through dispatch. Without it they
// run on whatever goroutine the Output calls them from.
func WithDispatch(dispatch func(func())) SchedulerOption {
	return func(s *Scheduler) { s.dispatch = dispatch }
}

// WithStatusHook is called on every status change.
func WithStatusHook(fn func(Status)) SchedulerOption {
	return func(s *Scheduler) { s.onStatus = fn }
}

func NewScheduler(out Output, sampleRate, channels int, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		channels:   channels,
		dispatch:   func(fn func()) { fn() },
		status:     StatusIdle,
		active:     make(map[uint64]scheduled),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Status() Status   { return s.status }
func (s *Scheduler) Cursor() float64  { return s.cursor }
func (s *Scheduler) ActiveCount() int { return len(s.active) }

// Begin moves IDLE to LISTENING once the session is open.
func (s *Scheduler) Begin() {
	if s.status == StatusIdle {
		s.setStatus(StatusListening)
	}
}

// OnFragment decodes one base64 PCM fragment and schedules it right after the
// previous one, or now if the previous one has already finished. A fragment
// that does not decode is returned as an error and leaves all state untouched.
func (s *Scheduler) OnFragment(data string) error {
	if s.status == StatusIdle {
		return fmt.Errorf("scheduler is idle")
	}
	buf, err := codec.DecodeFragment(data, s.sampleRate, s.channels)
	if err != nil {
		return fmt.Errorf("decode fragment: %w", err)
	}
	if buf.Frames() == 0 {
		return nil
	}

	startAt := max(s.cursor, s.out.CurrentTime())
	id := s.nextID
	s.nextID++

	src, err := s.out.Schedule(buf, startAt, func() {
		s.dispatch(func() { s.ended(id) })
	})
	if err != nil {
		return fmt.Errorf("schedule fragment: %w", err)
	}

	end := startAt + buf.Duration()
	s.active[id] = scheduled{src: src, start: startAt, end: end}
	s.cursor = end
	s.setStatus(StatusSpeaking)

	log.Debug().
		Float64("start", startAt).
		Float64("duration", buf.Duration()).
		Int("active", len(s.active)).
		Msg("fragment scheduled")
	return nil
}

// ended runs when a source finished or was stopped. Sources already removed
// by an interruption are ignored.
func (s *Scheduler) ended(id uint64) {
	if _, ok := s.active[id]; !ok {
		return
	}
	delete(s.active, id)
	if len(s.active) == 0 && s.status == StatusSpeaking {
		s.setStatus(StatusListening)
	}
}

// OnInterrupted cuts every scheduled fragment off immediately (barge-in).
func (s *Scheduler) OnInterrupted() {
	n := s.stopAll()
	s.cursor = 0
	if s.status == StatusSpeaking {
		s.setStatus(StatusListening)
	}
	log.Debug().Int("stopped", n).Msg("playback interrupted")
}

// Reset stops playback and returns to IDLE; used on session teardown.
func (s *Scheduler) Reset() {
	s.stopAll()
	s.cursor = 0
	s.setStatus(StatusIdle)
}

func (s *Scheduler) stopAll() int {
	n := len(s.active)
	// clear first so the ended hooks fired by Stop find nothing
	active := s.active
	s.active = make(map[uint64]scheduled)
	for _, sc := range active {
		sc.src.Stop()
	}
	return n
}

func (s *Scheduler) setStatus(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
