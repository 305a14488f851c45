package main

import (
	"context"
	"fmt"
	"os"

	"iurynex-aura/internal/app"
	audioconfig "iurynex-aura/internal/audio/config"
	"iurynex-aura/internal/audio/capture"
	"iurynex-aura/internal/audio/playback"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/live"
	"iurynex-aura/internal/session"
	"iurynex-aura/pkg/connection"
	"iurynex-aura/pkg/interface/desktop"
	"iurynex-aura/pkg/system"
	"iurynex-aura/pkg/web"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// hooks lets front-ends created after the app receive its events.
type hooks struct {
	live    []func(session.Snapshot)
	message []func(chat.Message)
	reset   []func([]chat.Message)
	state   []func(app.State)
}

func buildApp(ctx context.Context, h *hooks) (*app.App, error) {
	svc, err := chat.NewGeminiService(ctx, chat.GeminiConfig{APIKey: cfg.APIKey, Model: cfg.ChatModel})
	if err != nil {
		return nil, err
	}

	ac := audioconfig.NewLiveConfig().WithDeviceRate(cfg.CaptureDeviceRate)
	if err := ac.Validate(); err != nil {
		return nil, fmt.Errorf("audio config: %w", err)
	}
	dialer := live.NewDialer(live.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.LiveModel,
		Voice:   cfg.Voice,
		BaseURL: cfg.LiveBaseURL,
	})
	controller := session.NewController(
		capture.NewMicrophone(ac),
		playback.NewSpeakerDevice(ac),
		session.LiveDialer(dialer),
		session.WithAudioConfig(ac),
		session.WithObserver(func(s session.Snapshot) {
			for _, fn := range h.live {
				fn(s)
			}
		}),
	)

	conv := chat.NewConversation(svc,
		chat.WithMessageHook(func(m chat.Message) {
			for _, fn := range h.message {
				fn(m)
			}
		}),
		chat.WithResetHook(func(msgs []chat.Message) {
			for _, fn := range h.reset {
				fn(msgs)
			}
		}),
	)

	return app.New(conv, controller,
		app.WithScheduleURL(cfg.ScheduleURL),
		app.WithChangeHook(func(st app.State) {
			for _, fn := range h.state {
				fn(st)
			}
		}),
	), nil
}

func runChat(ctx context.Context) error {
	initLogger(true)
	h := &hooks{}
	a, err := buildApp(ctx, h)
	if err != nil {
		return err
	}
	defer a.Close()

	repl, err := desktop.NewDesktopInterface(a, os.Stdin, os.Stdout, system.OpenURL)
	if err != nil {
		return err
	}
	h.live = append(h.live, repl.OnLive)
	return repl.Run(ctx)
}

func runServe(ctx context.Context, withREPL bool) error {
	initLogger(withREPL)
	h := &hooks{}
	a, err := buildApp(ctx, h)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := connection.NewHub(cfg.AllowedOrigins, func() []connection.Event {
		return []connection.Event{{Type: "state", Data: a.State()}}
	})
	h.live = append(h.live, func(s session.Snapshot) {
		hub.Broadcast(connection.Event{Type: "live", Data: s})
	})
	h.message = append(h.message, func(m chat.Message) {
		hub.Broadcast(connection.Event{Type: "message", Data: m})
		hub.Broadcast(connection.Event{Type: "state", Data: a.State()})
	})
	h.reset = append(h.reset, func(msgs []chat.Message) {
		hub.Broadcast(connection.Event{Type: "reset", Data: msgs})
	})
	h.state = append(h.state, func(st app.State) {
		hub.Broadcast(connection.Event{Type: "state", Data: st})
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var repl *desktop.DesktopInterface
	if withREPL {
		if repl, err = desktop.NewDesktopInterface(a, os.Stdin, os.Stdout, system.OpenURL); err != nil {
			return err
		}
		h.live = append(h.live, repl.OnLive)
	}

	server := web.NewServer(a, hub, web.Options{Port: cfg.WebPort, TLS: cfg.WebTLS})
	g.Go(func() error { return server.Run(ctx) })
	if repl != nil {
		g.Go(func() error {
			defer cancel()
			return repl.Run(ctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}
