package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	Greeting      = "¡Hola! Soy Aura, tu asistente jurídica de IURYNEX. ¿En qué puedo orientarte hoy respecto a las leyes de Ecuador?"
	ResetGreeting = "Chat reiniciado. Hola, soy Aura. ¿Cómo puedo ayudarte con tus consultas legales hoy?"
	EmptyReply    = "Lo siento, tuve un problema procesando tu consulta. Por favor, intenta de nuevo."
	ErrorReply    = "Error de conexión. Asegúrate de que la configuración sea correcta."

	specialtyRequest = "Hola Aura, necesito asesoría sobre %s."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a reply is still pending")
)

// TextService answers one user turn given everything said before it.
type TextService interface {
	Reply(ctx context.Context, history []Message, text string) (string, error)
}

// Conversation is the message list shown to the user. Safe for concurrent use.
type Conversation struct {
	service TextService
	now     func() time.Time
	onAdd   func(Message)
	onReset func([]Message)

	mu       sync.Mutex
	messages []Message
	busy     bool
	epoch    uint64
}

type Option func(*Conversation)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// WithMessageHook is called for every appended message, outside the lock.
func WithMessageHook(fn func(Message)) Option {
	return func(c *Conversation) { c.onAdd = fn }
}

// WithResetHook is called with the new history after Reset.
func WithResetHook(fn func([]Message)) Option {
	return func(c *Conversation) { c.onReset = fn }
}

func NewConversation(service TextService, opts ...Option) *Conversation {
	c := &Conversation{service: service, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.messages = []Message{newMessage(RoleModel, Greeting, c.now())}
	return c
}

// Messages returns a copy in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Send appends the user's text, asks the service and appends its answer.
// Service failures become an assistant message, not an error; the returned
// error is only ErrEmptyMessage or ErrBusy.
func (c *Conversation) Send(ctx context.Context, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return Message{}, ErrBusy
	}
	history := append([]Message(nil), c.messages...)
	user := newMessage(RoleUser, text, c.now())
	c.messages = append(c.messages, user)
	c.busy = true
	epoch := c.epoch
	c.mu.Unlock()
	c.added(user)

	content, err := c.service.Reply(ctx, history, text)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("Text service failed")
		content = ErrorReply
	case strings.TrimSpace(content) == "":
		log.Warn().Msg("Text service returned an empty reply")
		content = EmptyReply
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debug().Msg("Discarding reply for a conversation that was reset")
		return Message{}, nil
	}
	c.busy = false
	reply := newMessage(RoleModel, content, c.now())
	c.messages = append(c.messages, reply)
	c.mu.Unlock()
	c.added(reply)
	return reply, nil
}

// AskSpecialty appends the canned request for name. It does not contact the
// service.
func (c *Conversation) AskSpecialty(name string) Message {
	msg := newMessage(RoleUser, fmt.Sprintf(specialtyRequest, name), c.now())
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.added(msg)
	return msg
}

// Reset replaces the history with a fresh greeting. A reply still in flight
// is dropped when it arrives.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.epoch++
	c.busy = false
	c.messages = []Message{newMessage(RoleModel, ResetGreeting, c.now())}
	msgs := append([]Message(nil), c.messages...)
	c.mu.Unlock()

	log.Info().Msg("Conversation reset")
	if c.onReset != nil {
		c.onReset(msgs)
	}
}

func (c *Conversation) added(m Message) {
	if c.onAdd != nil {
		c.onAdd(m)
	}
}
