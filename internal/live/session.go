// Package live is a client for the Gemini Live (BidiGenerateContent)
// WebSocket API: one persistent session carrying microphone audio up and
// synthesized speech down.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"iurynex-aura/internal/audio/codec"
	"iurynex-aura/pkg/system"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice   = "Kore"

	DefaultSystemInstruction = "Eres Aura, asistente jurídica de IURYNEX. Responde con voz clara, pausada y profesional. Ayuda con leyes de Ecuador."

	bidiPath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	keepaliveInterval = 20 * time.Second
	writeTimeout      = 5 * time.Second
)

var ErrClosed = errors.New("live session closed")

type Config struct {
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string
	BaseURL           string
	HandshakeTimeout  time.Duration
}

type EventType int

const (
	EventOpen EventType = iota + 1
	EventMessage
	EventError
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

type Event struct {
	Type    EventType
	Message *Message // EventMessage only
	Err     error    // EventError, and EventClose when the peer sent a reason
}

// Dialer opens sessions with a fixed configuration.
type Dialer struct {
	cfg    Config
	dialer websocket.Dialer
}

func NewDialer(cfg Config) *Dialer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &Dialer{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: false,
		},
	}
}

// Session is one live connection. Events are delivered only after Listen.
type Session struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	closeOnce  sync.Once
	listenOnce sync.Once
}

func (d *Dialer) endpoint() string {
	return fmt.Sprintf("%s%s?key=%s", strings.TrimRight(d.cfg.BaseURL, "/"), bidiPath, url.QueryEscape(d.cfg.APIKey))
}

// Dial connects and sends the setup frame. The session counts as open only
// once the server acknowledges setup with an EventOpen.
func (d *Dialer) Dial(ctx context.Context) (*Session, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live: dial failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live: dial: %w", err)
	}

	s := &Session{
		id:   system.GenerateSessionID(),
		conn: conn,
		done: make(chan struct{}),
	}
	if err := s.writeJSON(d.setup()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: setup: %w", err)
	}
	log.Info().Str("session", s.id).Str("model", d.cfg.Model).Msg("Live session dialed")
	return s, nil
}

func (d *Dialer) setup() setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + strings.TrimPrefix(d.cfg.Model, "models/"),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: d.cfg.Voice},
					},
				},
			},
		},
	}
	if d.cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: d.cfg.SystemInstruction}}}
	}
	return msg
}

func (s *Session) ID() string { return s.id }

// Listen starts delivering events to handler from a reader goroutine.
// handler is called sequentially. Nothing is delivered after Close.
func (s *Session) Listen(handler func(Event)) {
	s.listenOnce.Do(func() {
		go s.readLoop(handler)
		go s.keepaliveLoop()
	})
}

// SendRealtimeInput sends one captured chunk. It does not wait for any
// acknowledgment.
func (s *Session) SendRealtimeInput(blob codec.MediaBlob) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []codec.MediaBlob{blob}},
	})
}

// Close tears the connection down without waiting for the reader. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"), deadline)
		err = s.conn.Close()
		log.Info().Str("session", s.id).Msg("Live session closed")
	})
	return err
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) readLoop(handler func(Event)) {
	emit := func(ev Event) {
		if !s.closed.Load() {
			handler(ev)
		}
	}
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code != websocket.CloseNormalClosure {
					emit(Event{Type: EventError, Err: fmt.Errorf("live: closed by server (%d): %s", ce.Code, ce.Text)})
				}
				emit(Event{Type: EventClose, Err: err})
				return
			}
			emit(Event{Type: EventError, Err: fmt.Errorf("live: read: %w", err)})
			emit(Event{Type: EventClose})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("session", s.id).Msg("skipping malformed frame")
			continue
		}

		if msg.SetupComplete != nil {
			emit(Event{Type: EventOpen})
		}
		if msg.ServerContent != nil {
			emit(Event{Type: EventMessage, Message: newMessage(msg.ServerContent)})
		}
		if msg.GoAway != nil {
			log.Warn().Str("session", s.id).Str("time_left", msg.GoAway.TimeLeft).Msg("server is about to end the session")
		}
		if msg.Error != nil {
			emit(Event{Type: EventError, Err: fmt.Errorf("live: server error %d: %s", msg.Error.Code, msg.Error.Message)})
		}
	}
}

func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug().Err(err).Str("session", s.id).Msg("keepalive ping failed")
			}
		}
	}
}
