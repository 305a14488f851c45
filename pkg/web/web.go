// Package web serves the browser front-end: a JSON API over the application
// state plus the WebSocket event stream.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"iurynex-aura/internal/app"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/session"
	"iurynex-aura/pkg/config"
	"iurynex-aura/pkg/connection"
	"iurynex-aura/pkg/system"
	"iurynex-aura/tmplt"

	"github.com/rs/zerolog/log"
)

const liveStartTimeout = 30 * time.Second

type Options struct {
	Port int
	TLS  bool
}

type Server struct {
	app  *app.App
	hub  *connection.Hub
	opts Options
	page *template.Template
}

func NewServer(a *app.App, hub *connection.Hub, opts Options) *Server {
	return &Server{
		app:  a,
		hub:  hub,
		opts: opts,
		page: template.Must(template.New("page").Parse(tmplt.HtmlPage)),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.hub.HandleWebsocket)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/messages", s.handleSend)
	mux.HandleFunc("GET /api/specialties", s.handleSpecialties)
	mux.HandleFunc("POST /api/specialties/{id}", s.handleSpecialty)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/sidebar", s.handleSidebar)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/view/{view}", s.handleSetView)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("POST /api/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /api/live/stop", s.handleLiveStop)
	return mux
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheme := "http"
	if s.opts.TLS {
		cert, err := config.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("create certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		scheme = "https"
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if ip := system.GetLocalIP(); ip != "" {
		log.Info().Msgf("Network access: %s://%s:%d", scheme, ip, s.opts.Port)
	}
	log.Info().Msgf("Local access: %s://localhost:%d", scheme, s.opts.Port)

	var err error
	if s.opts.TLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		ScheduleURL string
		Specialties []chat.Specialty
	}{s.app.ScheduleURL(), chat.Specialties}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Render page failed")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Conversation().Messages())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	reply, err := s.app.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, reply)
	}
}

func (s *Server) handleSpecialties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chat.Specialties)
}

func (s *Server) handleSpecialty(w http.ResponseWriter, r *http.Request) {
	msg, err := s.app.SelectSpecialty(r.PathValue("id"))
	if errors.Is(err, app.ErrUnknownSpecialty) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.app.ResetChat()
	writeJSON(w, http.StatusOK, s.app.Conversation().Messages())
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	s.app.ToggleSidebar()
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]app.View{"view": s.app.View()})
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	v, err := app.ParseView(r.PathValue("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.app.SetView(v)
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State().Live)
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	// the session outlives this request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), liveStartTimeout)
	defer cancel()

	err := s.app.StartLive(ctx)
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, s.app.State().Live)
	}
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	s.app.StopLive()
	writeJSON(w, http.StatusOK, s.app.State().Live)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
