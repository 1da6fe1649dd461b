// Package orchestrator runs booking conversations: it owns the per-session
// state machine, serializes turns and routes replies to speech output and the
// transcript store.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/archive"
	"github.com/wolfman30/booking-assistant/internal/availability"
	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/internal/tools"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var (
	// ErrSessionNotFound is returned for unknown or closed session ids.
	ErrSessionNotFound = errors.New("orchestrator: session not found")
	// ErrTurnInProgress is returned when a model call is already in flight.
	ErrTurnInProgress = errors.New("orchestrator: turn in progress")
	// ErrEmptyUtterance is returned for blank text submissions.
	ErrEmptyUtterance = errors.New("orchestrator: empty utterance")
	// ErrCaptureUnavailable is returned when no recognizer is configured.
	ErrCaptureUnavailable = errors.New("orchestrator: speech capture not configured")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("orchestrator: closed")
)

// ApologyText is the reply given when a turn fails.
const ApologyText = "I'm sorry, something went wrong. Please say that again."

// ToolExecutor resolves a model tool call into a direct reply.
type ToolExecutor interface {
	Execute(ctx context.Context, req tools.Request, inv dialogue.Invocation) (tools.Outcome, error)
}

// TranscriptStore upserts a session's transcript lines.
type TranscriptStore interface {
	Upsert(ctx context.Context, sessionID, kind string, messages []string) error
}

// Archiver stores closed sessions.
type Archiver interface {
	Archive(ctx context.Context, record archive.SessionRecord) error
}

// Config wires an Orchestrator.
type Config struct {
	Dialogue     *dialogue.Client
	Tools        ToolExecutor
	Availability tools.SlotSource
	Transcripts  TranscriptStore
	Archiver     Archiver
	Synthesizer  speech.Synthesizer
	Streamer     speech.StreamRecognizer
	Transcriber  speech.Transcriber

	AssistantName   string
	HospitalName    string
	DefaultLanguage string
	TurnTimeout     time.Duration
	PersistTimeout  time.Duration

	Logger  *logging.Logger
	Metrics *metrics.BookingMetrics
	Now     func() time.Time
	NewID   func() string
}

// Orchestrator is the session arena.
type Orchestrator struct {
	dialogue     *dialogue.Client
	tools        ToolExecutor
	availability tools.SlotSource
	transcripts  TranscriptStore
	archiver     Archiver
	synthesizer  speech.Synthesizer
	streamer     speech.StreamRecognizer
	transcriber  speech.Transcriber

	assistantName   string
	hospitalName    string
	defaultLanguage string
	turnTimeout     time.Duration
	persistTimeout  time.Duration

	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Dialogue == nil {
		panic("orchestrator: dialogue client cannot be nil")
	}
	if cfg.Tools == nil {
		panic("orchestrator: tool executor cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if strings.TrimSpace(cfg.AssistantName) == "" {
		cfg.AssistantName = "Puck"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = booking.LanguageEnglish
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 45 * time.Second
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
	return &Orchestrator{
		dialogue:        cfg.Dialogue,
		tools:           cfg.Tools,
		availability:    cfg.Availability,
		transcripts:     cfg.Transcripts,
		archiver:        cfg.Archiver,
		synthesizer:     cfg.Synthesizer,
		streamer:        cfg.Streamer,
		transcriber:     cfg.Transcriber,
		assistantName:   cfg.AssistantName,
		hospitalName:    cfg.HospitalName,
		defaultLanguage: booking.NormalizeLanguage(cfg.DefaultLanguage, booking.LanguageEnglish),
		turnTimeout:     cfg.TurnTimeout,
		persistTimeout:  cfg.PersistTimeout,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		now:             cfg.Now,
		newID:           cfg.NewID,
		sessions:        make(map[string]*session),
	}
}

// SessionOptions configures a new session.
type SessionOptions struct {
	Language string
}

// CreateSession opens a session in Idle. The model session itself is created
// on the first turn.
func (o *Orchestrator) CreateSession(ctx context.Context, opts SessionOptions) (Snapshot, error) {
	o.mu.RLock()
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		return Snapshot{}, ErrClosed
	}

	id := o.newID()
	lang := booking.NormalizeLanguage(opts.Language, o.defaultLanguage)
	logger := o.logger.WithSession(id)

	var slots []booking.Slot
	if o.availability != nil {
		sctx, cancel := context.WithTimeout(ctx, o.persistTimeout)
		var err error
		slots, err = o.availability.Slots(sctx)
		cancel()
		if err != nil {
			logger.Warn("availability unavailable for system instruction", "error", err)
		}
	}

	catalog := tools.Catalog()
	inst := dialogue.Instruction{
		System: dialogue.BookingInstruction(dialogue.PromptParams{
			AssistantName: o.assistantName,
			HospitalName:  o.hospitalName,
			Language:      booking.LanguageName(lang),
			Today:         o.now(),
			SlotSummary:   availability.Summaries(slots),
			Tools:         catalog,
		}),
		Tools:      catalog,
		JSONOutput: true,
	}

	s := &session{
		id:        id,
		language:  lang,
		createdAt: o.now().UTC(),
		logger:    logger,
		conv:      o.dialogue.NewConversation(inst, logger),
		state:     StateIdle,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return Snapshot{}, ErrClosed
	}
	o.sessions[id] = s
	logger.Info("session created", "language", lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Snapshot returns a copy of the session's state.
func (o *Orchestrator) Snapshot(id string) (Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Subscribe streams the session's events until the returned cancel func is
// called or the session closes.
func (o *Orchestrator) Subscribe(id string) (<-chan Event, func(), error) {
	s, err := o.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.subscribe()
	return ch, cancel, nil
}

// CloseSession removes the session, flushes its transcript and archives it.
// It is rejected while a model call is in flight.
func (o *Orchestrator) CloseSession(ctx context.Context, id string) error {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return ErrSessionNotFound
	}
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	delete(o.sessions, id)
	o.mu.Unlock()

	s.closed = true
	if s.speakCancel != nil {
		s.speakCancel()
		s.speakCancel = nil
	}
	s.state = StateIdle
	s.closeSubscribersLocked()
	capture := s.capture
	record := o.archiveRecordLocked(s)
	s.mu.Unlock()

	if capture != nil {
		capture.Close()
	}

	done := o.persist(s)
	if o.archiver != nil {
		o.goTracked(func() {
			<-done
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.persistTimeout)
			defer cancel()
			if err := o.archiver.Archive(actx, record); err != nil {
				o.metrics.ObservePersistenceFailure("archive")
				s.logger.Error("failed to archive session", "error", err)
			}
		})
	}
	s.logger.Info("session closed", "turns", len(record.Messages), "outcome", record.Outcome)
	return nil
}

func (o *Orchestrator) archiveRecordLocked(s *session) archive.SessionRecord {
	outcome := archive.OutcomeAbandoned
	if s.draft.Committed {
		outcome = archive.OutcomeBooked
	}
	return archive.SessionRecord{
		SessionID:   s.id,
		Type:        transcripts.TypeVoice,
		Language:    s.language,
		Model:       s.conv.Model(),
		FellBack:    s.conv.FellBack(),
		StartedAt:   s.createdAt,
		ClosedAt:    o.now().UTC(),
		Outcome:     outcome,
		Appointment: s.draft.AppointmentID,
		Department:  s.draft.Department,
		Messages:    archive.MessagesFromTurns(s.turns),
	}
}

// Shutdown rejects new sessions, stops capture and playback and waits for
// background persistence to finish.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	sessions := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.speakCancel != nil {
			s.speakCancel()
		}
		capture := s.capture
		s.mu.Unlock()
		if capture != nil {
			capture.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (o *Orchestrator) lookup(id string) (*session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (o *Orchestrator) goTracked(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// persist writes the current transcript in the background. Writes for one
// session are applied in order; the returned channel closes when this one is done.
func (o *Orchestrator) persist(s *session) <-chan struct{} {
	done := make(chan struct{})
	if o.transcripts == nil {
		close(done)
		return done
	}

	s.mu.Lock()
	lines := s.linesLocked(o.assistantName)
	prev := s.persisted
	s.persisted = done
	s.mu.Unlock()

	o.goTracked(func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.persistTimeout)
		defer cancel()
		if err := o.transcripts.Upsert(ctx, s.id, transcripts.TypeVoice, lines); err != nil {
			o.metrics.ObservePersistenceFailure("transcripts")
			s.logger.Error("failed to persist transcript", "error", err, "lines", len(lines))
		}
	})
	return done
}

func describe(err error) string {
	switch {
	case errors.Is(err, dialogue.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, tools.ErrToolProtocolViolation):
		return "tool_protocol_violation"
	case errors.Is(err, speech.ErrCapture):
		return "capture_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
