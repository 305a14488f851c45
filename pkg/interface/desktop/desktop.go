// Package desktop is the console front-end.
package desktop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"iurynex-aura/internal/app"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/session"

	"github.com/rs/zerolog/log"
)

type DesktopInterface struct {
	app     *app.App
	in      io.Reader
	out     io.Writer
	styles  Styles
	openURL func(string) error

	outMu sync.Mutex

	// a connect in progress, canceled by /stop, /chat and exit
	startMu     sync.Mutex
	cancelStart context.CancelFunc
	starting    sync.WaitGroup
}

func NewDesktopInterface(a *app.App, in io.Reader, out io.Writer, openURL func(string) error) (*DesktopInterface, error) {
	if a == nil || in == nil || out == nil {
		return nil, fmt.Errorf("desktop interface: app, input and output are required")
	}
	return &DesktopInterface{
		app:     a,
		in:      in,
		out:     out,
		styles:  NewStyles(),
		openURL: openURL,
	}, nil
}

// OnLive prints voice session changes as they happen. It is safe to use as a
// session observer.
func (di *DesktopInterface) OnLive(snap session.Snapshot) {
	di.print(di.styles.live(snap) + "\n")
}

// Run reads commands until /salir, end of input or ctx is done. A voice
// connect still pending at that point is canceled.
func (di *DesktopInterface) Run(ctx context.Context) error {
	defer di.starting.Wait()
	defer di.abortStart()

	di.print(di.styles.Title.Render("IURYNEX · Aura") + "\n")
	di.print(di.styles.Help.Render(helpText) + "\n\n")
	if msgs := di.app.Conversation().Messages(); len(msgs) > 0 {
		di.print(di.styles.message(msgs[len(msgs)-1]))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(di.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		di.print("> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if quit := di.handle(ctx, line); quit {
			di.print("Hasta pronto.\n")
			return nil
		}
	}
}

func (di *DesktopInterface) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		di.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/live":
		di.startLive(ctx)
	case "/stop":
		di.abortStart()
		di.app.StopLive()
	case "/chat":
		di.abortStart()
		di.app.SetView(app.ViewChat)
	case "/esp":
		di.specialty(arg)
	case "/reset":
		di.app.ResetChat()
		di.print(di.styles.message(di.app.Conversation().Messages()[0]))
	case "/agendar":
		url := di.app.ScheduleURL()
		di.print("Agendar cita: " + url + "\n")
		if di.openURL != nil {
			if err := di.openURL(url); err != nil {
				log.Warn().Err(err).Msg("Cannot open browser")
			}
		}
	case "/sidebar":
		if di.app.ToggleSidebar() {
			di.print(di.styles.specialties())
		} else {
			di.print(di.styles.Help.Render("Barra lateral oculta") + "\n")
		}
	case "/historial":
		for _, m := range di.app.Conversation().Messages() {
			di.print(di.styles.message(m))
		}
	case "/estado":
		di.print(di.styles.state(di.app.State(), len(di.app.Conversation().Messages()), di.app.CaptureStats()))
	case "/ayuda":
		di.print(di.styles.Help.Render(helpText) + "\n")
	case "/salir":
		return true
	default:
		di.print(di.styles.Error.Render("Comando desconocido: "+cmd) + "\n")
	}
	return false
}

// startLive connects in the background so /stop and /chat stay usable while
// the session is CONNECTING.
func (di *DesktopInterface) startLive(ctx context.Context) {
	di.startMu.Lock()
	if di.cancelStart != nil {
		di.startMu.Unlock()
		di.print(di.styles.Help.Render("Ya hay una conexión en curso.") + "\n")
		return
	}
	startCtx, cancel := context.WithCancel(ctx)
	di.cancelStart = cancel
	di.starting.Add(1)
	di.startMu.Unlock()

	di.app.SetView(app.ViewLive)
	di.print("Conectando con Aura...\n")

	go func() {
		defer di.starting.Done()
		err := di.app.ConnectLive(startCtx)

		di.startMu.Lock()
		canceled := startCtx.Err() != nil
		di.cancelStart = nil
		di.startMu.Unlock()
		cancel()

		switch {
		case err == nil:
		case canceled && (errors.Is(err, context.Canceled) || errors.Is(err, session.ErrCanceled)):
			di.print(di.styles.Help.Render("Conexión cancelada.") + "\n")
		default:
			di.print(di.styles.Error.Render(err.Error()) + "\n")
		}
	}()
}

func (di *DesktopInterface) abortStart() {
	di.startMu.Lock()
	defer di.startMu.Unlock()
	if di.cancelStart != nil {
		di.cancelStart()
	}
}

func (di *DesktopInterface) send(ctx context.Context, text string) {
	reply, err := di.app.Send(ctx, text)
	switch {
	case errors.Is(err, chat.ErrBusy):
		di.print(di.styles.Error.Render("Aura todavía está respondiendo.") + "\n")
	case err != nil:
		di.print(di.styles.Error.Render(err.Error()) + "\n")
	case reply.ID != "":
		di.print(di.styles.message(reply))
	}
}

func (di *DesktopInterface) specialty(arg string) {
	if arg == "" {
		di.print(di.styles.specialties())
		return
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(chat.Specialties) {
		arg = chat.Specialties[n-1].ID
	}
	msg, err := di.app.SelectSpecialty(arg)
	if err != nil {
		di.print(di.styles.Error.Render(err.Error()) + "\n")
		return
	}
	di.print(di.styles.message(msg))
}

func (di *DesktopInterface) print(s string) {
	di.outMu.Lock()
	defer di.outMu.Unlock()
	_, _ = io.WriteString(di.out, s)
}
