// Package app holds the UI state shared by every front-end: which view is
// showing, the sidebar, the conversation and the live voice controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"iurynex-aura/internal/audio/capture"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/session"

	"github.com/rs/zerolog/log"
)

type View string

const (
	ViewChat View = "CHAT"
	ViewLive View = "LIVE"
)

const DefaultScheduleURL = "https://iurynex.com/agendar"

var (
	ErrUnknownView      = errors.New("unknown view")
	ErrUnknownSpecialty = errors.New("unknown specialty")
)

// ParseView accepts "chat"/"live" in any case.
func ParseView(s string) (View, error) {
	switch View(strings.ToUpper(strings.TrimSpace(s))) {
	case ViewChat:
		return ViewChat, nil
	case ViewLive:
		return ViewLive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// Live is the voice session as the application drives it.
type Live interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() session.Snapshot
	CaptureStats() capture.Stats
}

type State struct {
	View        View             `json:"view"`
	SidebarOpen bool             `json:"sidebarOpen"`
	Live        session.Snapshot `json:"live"`
	Busy        bool             `json:"busy"`
}

type App struct {
	conv        *chat.Conversation
	live        Live
	scheduleURL string
	onChange    func(State)

	mu      sync.Mutex
	view    View
	sidebar bool
}

type Option func(*App)

func WithScheduleURL(u string) Option {
	return func(a *App) {
		if u != "" {
			a.scheduleURL = u
		}
	}
}

// WithChangeHook is called after every view or sidebar change.
func WithChangeHook(fn func(State)) Option {
	return func(a *App) { a.onChange = fn }
}

func New(conv *chat.Conversation, live Live, opts ...Option) *App {
	a := &App{
		conv:        conv,
		live:        live,
		scheduleURL: DefaultScheduleURL,
		view:        ViewChat,
		sidebar:     true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Conversation() *chat.Conversation { return a.conv }

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *App) stateLocked() State {
	return State{
		View:        a.view,
		SidebarOpen: a.sidebar,
		Live:        a.live.Snapshot(),
		Busy:        a.conv.Busy(),
	}
}

func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// SetView switches views. Leaving LIVE always ends the voice session.
func (a *App) SetView(v View) {
	a.mu.Lock()
	prev := a.view
	a.view = v
	st := a.stateLocked()
	a.mu.Unlock()

	if prev == v {
		return
	}
	if prev == ViewLive {
		a.live.Stop()
		st.Live = a.live.Snapshot()
	}
	log.Debug().Str("from", string(prev)).Str("to", string(v)).Msg("View changed")
	a.changed(st)
}

func (a *App) ToggleSidebar() bool {
	a.mu.Lock()
	a.sidebar = !a.sidebar
	open := a.sidebar
	st := a.stateLocked()
	a.mu.Unlock()
	a.changed(st)
	return open
}

// SelectSpecialty asks about the specialty named by id or name and shows the
// chat.
func (a *App) SelectSpecialty(key string) (chat.Message, error) {
	sp, ok := chat.FindSpecialty(key)
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %q", ErrUnknownSpecialty, key)
	}
	msg := a.conv.AskSpecialty(sp.Name)
	a.SetView(ViewChat)
	return msg, nil
}

func (a *App) ResetChat() { a.conv.Reset() }

func (a *App) Send(ctx context.Context, text string) (chat.Message, error) {
	return a.conv.Send(ctx, text)
}

func (a *App) ScheduleURL() string { return a.scheduleURL }

// StartLive shows the voice view and connects.
func (a *App) StartLive(ctx context.Context) error {
	a.SetView(ViewLive)
	return a.ConnectLive(ctx)
}

// ConnectLive connects without touching the view. Callers that connect in
// the background switch to ViewLive first, so a later SetView(ViewChat)
// still ends the session.
func (a *App) ConnectLive(ctx context.Context) error {
	return a.live.Start(ctx)
}

func (a *App) StopLive() { a.live.Stop() }

// CaptureStats reports outbound audio of the current voice session.
func (a *App) CaptureStats() capture.Stats { return a.live.CaptureStats() }

// Close ends any live session; the app is unusable afterwards.
func (a *App) Close() {
	a.live.Stop()
	log.Info().Msg("Application closed")
}

func (a *App) changed(st State) {
	if a.onChange != nil {
		a.onChange(st)
	}
}
