package assistant

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lox/showcase/internal/metrics"
	"github.com/lox/showcase/internal/models"
)

const (
	Greeting   = "Hello! I'm Abdullah's AI Assistant. Ask me about his projects, skills, or anything else about the world!"
	EmptyReply = "I couldn't generate a response at the moment."
	ErrorReply = "Sorry, I encountered an error connecting to the AI brain. Please try again later."
)

// Turn is one role/text pair sent to the completion endpoint.
type Turn struct {
	Role models.Role
	Text string
}

// Completer generates the next assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, persona string, history []Turn) (string, error)
}

// Session is a linear conversation with a single exchange in flight at most.
// The transcript only ever grows.
type Session struct {
	completer Completer
	persona   string
	now       func() time.Time
	onChange  func([]models.Message, bool)

	mu       sync.Mutex
	messages []models.Message
	pending  bool
}

type Option func(*Session)

// WithGreeting replaces the seeded assistant greeting.
func WithGreeting(text string) Option {
	return func(s *Session) {
		s.messages[0].Text = text
	}
}

// WithOnChange registers a callback invoked after every transcript or
// pending-state change, with a copy of the transcript.
func WithOnChange(fn func(messages []models.Message, pending bool)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
		s.messages[0].CreatedAt = now()
	}
}

func NewSession(completer Completer, persona string, opts ...Option) *Session {
	s := &Session{
		completer: completer,
		persona:   persona,
		now:       time.Now,
	}
	s.messages = []models.Message{{
		ID:        newID(),
		Role:      models.RoleAssistant,
		Text:      Greeting,
		CreatedAt: s.now(),
	}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send runs one exchange. It returns false without touching the transcript
// when text is blank or another exchange is still pending; otherwise it
// blocks until the reply (or the error placeholder) has been appended.
func (s *Session) Send(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return false
	}
	history := make([]Turn, 0, len(s.messages)+1)
	for _, m := range s.messages {
		history = append(history, Turn{Role: m.Role, Text: m.Text})
	}
	history = append(history, Turn{Role: models.RoleUser, Text: text})

	s.messages = append(s.messages, models.Message{
		ID:        newID(),
		Role:      models.RoleUser,
		Text:      text,
		CreatedAt: s.now(),
	})
	s.pending = true
	s.mu.Unlock()
	s.notify()

	reply := s.exchange(ctx, history)

	s.mu.Lock()
	s.messages = append(s.messages, models.Message{
		ID:        newID(),
		Role:      models.RoleAssistant,
		Text:      reply,
		CreatedAt: s.now(),
	})
	s.pending = false
	s.mu.Unlock()
	s.notify()

	return true
}

func (s *Session) exchange(ctx context.Context, history []Turn) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("assistant: completer panic: %v", r)
			metrics.ChatExchanges.WithLabelValues("error").Inc()
			reply = ErrorReply
		}
	}()

	if s.completer == nil {
		log.Printf("assistant: no completer configured")
		metrics.ChatExchanges.WithLabelValues("error").Inc()
		return ErrorReply
	}

	text, err := s.completer.Complete(ctx, s.persona, history)
	if err != nil {
		log.Printf("assistant: completion failed: %v", err)
		metrics.ChatExchanges.WithLabelValues("error").Inc()
		return ErrorReply
	}
	if text == "" {
		metrics.ChatExchanges.WithLabelValues("empty").Inc()
		return EmptyReply
	}
	metrics.ChatExchanges.WithLabelValues("ok").Inc()
	return text
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	pending := s.pending
	s.mu.Unlock()
	s.onChange(msgs, pending)
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Pending reports whether an exchange is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func newID() string {
	return uuid.NewString()
}
