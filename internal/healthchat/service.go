// Package healthchat is the free-form symptom chat. Replies stream from the
// model and have no tools.
package healthchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var (
	ErrSessionNotFound = errors.New("healthchat: session not found")
	ErrReplyInProgress = errors.New("healthchat: reply in progress")
	ErrEmptyMessage    = errors.New("healthchat: empty message")
)

// ErrorText is appended as the assistant turn when the model cannot be reached.
const ErrorText = "I'm having trouble connecting to the hospital network. Please try again."

// Greeting is the first assistant turn of every chat.
func Greeting(assistantName string) string {
	return fmt.Sprintf("Hello! I'm %s, your medical assistant. I can help verify symptoms and check doctor availability. How are you feeling?", assistantName)
}

// Persona is the chat system instruction.
func Persona(assistantName, hospitalName string) string {
	return fmt.Sprintf("You are %s, a helpful AI medical assistant for %s. Be empathetic, professional, and concise. Always advise seeing a real doctor for serious symptoms.", assistantName, hospitalName)
}

// TranscriptStore upserts chat transcripts.
type TranscriptStore interface {
	Upsert(ctx context.Context, sessionID, kind string, messages []string) error
}

type Config struct {
	Dialogue       *dialogue.Client
	Transcripts    TranscriptStore
	AssistantName  string
	HospitalName   string
	ReplyTimeout   time.Duration
	PersistTimeout time.Duration
	Logger         *logging.Logger
	Metrics        *metrics.BookingMetrics
	Now            func() time.Time
	NewID          func() string
}

// Service holds chat sessions in memory.
type Service struct {
	dialogue       *dialogue.Client
	transcripts    TranscriptStore
	assistantName  string
	hospitalName   string
	replyTimeout   time.Duration
	persistTimeout time.Duration
	logger         *logging.Logger
	metrics        *metrics.BookingMetrics
	now            func() time.Time
	newID          func() string

	mu       sync.RWMutex
	sessions map[string]*chat
	wg       sync.WaitGroup
}

type chat struct {
	id        string
	createdAt time.Time
	conv      *dialogue.Conversation
	logger    *logging.Logger

	mu        sync.Mutex
	turns     []booking.Turn
	streaming bool
	persisted chan struct{}
}

// Snapshot is a copy of a chat session.
type Snapshot struct {
	ID        string         `json:"sessionId"`
	Mode      string         `json:"mode"`
	Streaming bool           `json:"streaming"`
	Turns     []booking.Turn `json:"turns"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewService panics without a dialogue client and fills in the other defaults.
func NewService(cfg Config) *Service {
	if cfg.Dialogue == nil {
		panic("healthchat: dialogue client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if strings.TrimSpace(cfg.AssistantName) == "" {
		cfg.AssistantName = "Puck"
	}
	if strings.TrimSpace(cfg.HospitalName) == "" {
		cfg.HospitalName = "Rajagiri Hospital"
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 45 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		dialogue:       cfg.Dialogue,
		transcripts:    cfg.Transcripts,
		assistantName:  cfg.AssistantName,
		hospitalName:   cfg.HospitalName,
		replyTimeout:   cfg.ReplyTimeout,
		persistTimeout: cfg.PersistTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
		newID:          cfg.NewID,
		sessions:       make(map[string]*chat),
	}
}

// CreateSession starts a chat seeded with the greeting.
func (s *Service) CreateSession() Snapshot {
	id := s.newID()
	logger := s.logger.WithSession(id)
	c := &chat{
		id:        id,
		createdAt: s.now().UTC(),
		logger:    logger,
		conv:      s.dialogue.NewConversation(dialogue.Instruction{System: Persona(s.assistantName, s.hospitalName)}, logger),
		turns: []booking.Turn{{
			Role:      booking.RoleAssistant,
			Text:      Greeting(s.assistantName),
			CreatedAt: s.now(),
		}},
	}

	s.mu.Lock()
	s.sessions[id] = c
	s.mu.Unlock()
	logger.Info("chat session created")

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Snapshot returns a copy of the chat.
func (s *Service) Snapshot(id string) (Snapshot, error) {
	c, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), nil
}

// Send streams the reply to message through onChunk, which receives the
// accumulated assistant text after every delta. onChunk receives "" when a
// fallback replay discards the text streamed so far. The final assistant
// turn is returned; on model failure it carries ErrorText.
func (s *Service) Send(ctx context.Context, id, message string, onChunk func(text string)) (booking.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return booking.Turn{}, ErrEmptyMessage
	}
	c, err := s.lookup(id)
	if err != nil {
		return booking.Turn{}, err
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return booking.Turn{}, ErrReplyInProgress
	}
	c.streaming = true
	c.turns = append(c.turns,
		booking.Turn{Role: booking.RoleUser, Text: message, CreatedAt: s.now()},
		booking.Turn{Role: booking.RoleAssistant, CreatedAt: s.now()},
	)
	idx := len(c.turns) - 1
	c.mu.Unlock()

	start := s.now()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.replyTimeout)
	defer cancel()

	var acc strings.Builder
	_, err = c.conv.Stream(sctx, message, func(delta string) {
		if delta == "" {
			return
		}
		acc.WriteString(delta)
		text := acc.String()
		c.mu.Lock()
		c.turns[idx].Text = text
		c.mu.Unlock()
		if onChunk != nil {
			onChunk(text)
		}
	}, func() {
		discarded := acc.Len()
		acc.Reset()
		c.mu.Lock()
		c.turns[idx].Text = ""
		c.mu.Unlock()
		if discarded > 0 && onChunk != nil {
			onChunk("")
		}
	})

	c.mu.Lock()
	if err != nil {
		s.metrics.ObserveTurn("chat_error", s.now().Sub(start))
		c.logger.Error("chat reply failed", "error", err)
		if c.turns[idx].Text == "" {
			c.turns = c.turns[:idx]
		}
		c.turns = append(c.turns, booking.Turn{Role: booking.RoleAssistant, Text: ErrorText, CreatedAt: s.now()})
	} else {
		s.metrics.ObserveTurn("chat", s.now().Sub(start))
	}
	reply := c.turns[len(c.turns)-1]
	c.streaming = false
	c.mu.Unlock()

	s.persist(c)
	return reply, nil
}

// Close removes the chat after flushing its transcript.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	c, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	c.mu.Lock()
	streaming := c.streaming
	c.mu.Unlock()
	if streaming {
		s.mu.Unlock()
		return ErrReplyInProgress
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.persist(c)
	c.logger.Info("chat session closed")
	return nil
}

// Wait blocks until background transcript writes finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Service) lookup(id string) (*chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// persist upserts the chat transcript in the background, in order per chat.
func (s *Service) persist(c *chat) {
	if s.transcripts == nil {
		return
	}
	c.mu.Lock()
	lines := booking.TranscriptLines(c.turns, s.assistantName)
	prev := c.persisted
	done := make(chan struct{})
	c.persisted = done
	c.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		if err := s.transcripts.Upsert(ctx, c.id, transcripts.TypeChat, lines); err != nil {
			s.metrics.ObservePersistenceFailure("transcripts")
			c.logger.Error("failed to persist chat transcript", "error", err)
		}
	}()
}

func (c *chat) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        c.id,
		Mode:      "chat",
		Streaming: c.streaming,
		Turns:     append([]booking.Turn(nil), c.turns...),
		CreatedAt: c.createdAt,
	}
}
