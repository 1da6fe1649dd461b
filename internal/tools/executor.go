package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/sentiment"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// SlotSource lists bookable slots.
type SlotSource interface {
	Slots(ctx context.Context) ([]booking.Slot, error)
}

// AppointmentWriter persists committed appointments.
type AppointmentWriter interface {
	Save(ctx context.Context, appt booking.Appointment) error
}

// SentimentScorer scores a transcript. It must not fail.
type SentimentScorer interface {
	Analyze(ctx context.Context, transcript []string) sentiment.Result
}

// AppointmentNotifier is told about committed appointments.
type AppointmentNotifier interface {
	NotifyAppointment(ctx context.Context, appt booking.Appointment) error
}

// Responder takes a tool result back to the model for phrasing.
type Responder interface {
	SendToolResult(ctx context.Context, name, result string) (dialogue.Reply, error)
}

// Request carries the per-session state a tool call operates on.
type Request struct {
	SessionID string
	Language  string
	Source    string
	// Draft is updated in place.
	Draft      *booking.Draft
	Transcript []string
	Responder  Responder
}

// Outcome is the result of resolving one tool call.
type Outcome struct {
	Tool  Name
	Reply dialogue.Reply
	// Audit is the turn-log entry recording the tool action.
	Audit booking.Turn
	// Appointment is set when this call committed a booking.
	Appointment *booking.Appointment
	// Missing lists the fields that blocked a confirm_appointment call.
	Missing []string
}

// Config configures an Executor.
type Config struct {
	Slots          SlotSource
	Appointments   AppointmentWriter
	Sentiment      SentimentScorer
	Notifier       AppointmentNotifier
	AllowRebooking bool
	PersistTimeout time.Duration
	// Go runs fire-and-forget work. Defaults to a bare goroutine.
	Go      func(func())
	Logger  *logging.Logger
	Metrics *metrics.BookingMetrics
	Now     func() time.Time
	NewID   func() string
}

// Executor resolves tool invocations.
type Executor struct {
	slots          SlotSource
	appointments   AppointmentWriter
	sentiment      SentimentScorer
	notifier       AppointmentNotifier
	allowRebooking bool
	persistTimeout time.Duration
	goFn           func(func())
	logger         *logging.Logger
	metrics        *metrics.BookingMetrics
	now            func() time.Time
	newID          func() string
}

// NewExecutor creates a tool executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Slots == nil {
		panic("tools: slot source cannot be nil")
	}
	if cfg.Appointments == nil {
		panic("tools: appointment writer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.Go == nil {
		cfg.Go = func(fn func()) { go fn() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &Executor{
		slots:          cfg.Slots,
		appointments:   cfg.Appointments,
		sentiment:      cfg.Sentiment,
		notifier:       cfg.Notifier,
		allowRebooking: cfg.AllowRebooking,
		persistTimeout: cfg.PersistTimeout,
		goFn:           cfg.Go,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
		newID:          cfg.NewID,
	}
}

// Execute decodes inv and resolves it. The returned reply is always direct.
func (e *Executor) Execute(ctx context.Context, req Request, inv dialogue.Invocation) (Outcome, error) {
	if req.Draft == nil {
		req.Draft = &booking.Draft{}
	}
	call, err := Decode(inv)
	if err != nil {
		e.metrics.ObserveToolCall("unknown", "violation")
		return Outcome{}, err
	}

	var out Outcome
	switch c := call.(type) {
	case AvailabilityCall:
		out, err = e.availability(ctx, req, c)
	case ConfirmCall:
		out, err = e.confirm(ctx, req, c)
	default:
		err = fmt.Errorf("%w: unhandled tool %q", ErrToolProtocolViolation, call.ToolName())
	}

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case len(out.Missing) > 0:
		status = "rejected"
	}
	e.metrics.ObserveToolCall(string(call.ToolName()), status)
	return out, err
}

func (e *Executor) availability(ctx context.Context, req Request, call AvailabilityCall) (Outcome, error) {
	if call.Department != "" {
		req.Draft.Department = call.Department
	}

	slots, err := e.slots.Slots(ctx)
	if err != nil {
		e.logger.Warn("availability lookup failed", "error", err, "session_id", req.SessionID)
		slots = nil
	}
	offered := FilterByDepartment(slots, call.Department)
	result := AvailabilityResult(offered, req.Language)

	reply, err := e.secondRound(ctx, req, NameGetAvailability, result)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Tool:  NameGetAvailability,
		Reply: reply,
		Audit: e.audit(NameGetAvailability, fmt.Sprintf("[%s department=%q] %s", NameGetAvailability, call.Department, result)),
	}, nil
}

func (e *Executor) confirm(ctx context.Context, req Request, call ConfirmCall) (Outcome, error) {
	draft := req.Draft
	if draft.Committed && !e.allowRebooking {
		e.metrics.ObserveAppointment("duplicate")
		display := fmt.Sprintf("Your appointment with %s at %s is already confirmed.", doctorOrDefault(draft.DoctorName), draft.TimeSlot)
		return Outcome{
			Tool:  NameConfirmAppointment,
			Reply: dialogue.Direct(display, display),
			Audit: e.audit(NameConfirmAppointment, "[confirm_appointment] skipped, session already booked"),
		}, nil
	}

	candidate := *draft
	candidate.Merge(call.Fields)
	if missing := candidate.Missing(); len(missing) > 0 {
		// Keep what the model did supply, but do not commit.
		draft.Merge(call.Fields)
		e.metrics.ObserveAppointment("rejected")
		e.logger.Warn("confirm_appointment rejected",
			"error", ErrIncompleteBooking,
			"missing", strings.Join(missing, ","),
			"session_id", req.SessionID,
		)
		result := fmt.Sprintf("Cannot confirm yet, missing: %s. Ask the user for it. Do not confirm until the user picks a time slot.", strings.Join(missing, ", "))
		reply, err := e.secondRound(ctx, req, NameConfirmAppointment, result)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Tool:    NameConfirmAppointment,
			Reply:   reply,
			Audit:   e.audit(NameConfirmAppointment, "[confirm_appointment] rejected, missing "+strings.Join(missing, ", ")),
			Missing: missing,
		}, nil
	}

	source := req.Source
	if source == "" {
		source = booking.SourceVoice
	}
	appt := booking.NewAppointment(e.newID(), req.SessionID, candidate, source, e.now())
	if e.sentiment != nil {
		score := e.sentiment.Analyze(ctx, req.Transcript)
		appt.Sentiment, appt.Confidence = score.Label, score.Confidence
	}

	e.save(ctx, req.SessionID, appt)

	*draft = candidate
	draft.DoctorName = appt.DoctorName
	draft.Committed = true
	draft.AppointmentID = appt.ID
	draft.CommittedAt = appt.CreatedAt
	e.metrics.ObserveAppointment("committed")

	if e.notifier != nil {
		notifier := e.notifier
		e.goFn(func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
			defer cancel()
			if err := notifier.NotifyAppointment(nctx, appt); err != nil {
				e.logger.Warn("appointment notification failed", "error", err, "appointment_id", appt.ID)
			}
		})
	}

	display, speech := ConfirmationText(appt)
	return Outcome{
		Tool:        NameConfirmAppointment,
		Reply:       dialogue.Direct(display, speech),
		Audit:       e.audit(NameConfirmAppointment, fmt.Sprintf("[confirm_appointment] %s", display)),
		Appointment: &appt,
	}, nil
}

// save writes the appointment. Failures are logged and counted only.
func (e *Executor) save(ctx context.Context, sessionID string, appt booking.Appointment) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
	defer cancel()
	if err := e.appointments.Save(sctx, appt); err != nil {
		e.metrics.ObservePersistenceFailure("appointments")
		e.logger.Error("failed to persist appointment",
			"error", err,
			"session_id", sessionID,
			"appointment_id", appt.ID,
		)
		return
	}
	e.logger.Info("appointment saved", "session_id", sessionID, "appointment_id", appt.ID, "patient", appt.PatientName)
}

// secondRound asks the model to phrase a tool result. Another tool call here
// is a protocol violation.
func (e *Executor) secondRound(ctx context.Context, req Request, tool Name, result string) (dialogue.Reply, error) {
	if req.Responder == nil {
		return dialogue.Reply{}, fmt.Errorf("tools: no responder for %s result", tool)
	}
	reply, err := req.Responder.SendToolResult(ctx, string(tool), result)
	if err != nil {
		return dialogue.Reply{}, err
	}
	if reply.IsToolCall() {
		return dialogue.Reply{}, fmt.Errorf("%w: %s answered with %q", ErrToolProtocolViolation, tool, reply.Invocation.Name)
	}
	return reply, nil
}

func (e *Executor) audit(tool Name, text string) booking.Turn {
	return booking.Turn{Role: booking.RoleAssistant, Tool: string(tool), Text: text, CreatedAt: e.now()}
}

// ConfirmationText is the fixed confirmation shown and spoken after a commit.
func ConfirmationText(appt booking.Appointment) (display, speech string) {
	display = fmt.Sprintf("Confirmed: %s at %s.", appt.DoctorName, appt.TimeSlot)
	speech = fmt.Sprintf("I have booked your appointment with %s for %s.", appt.DoctorName, appt.TimeSlot)
	return display, speech
}

func doctorOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return booking.DefaultDoctor
	}
	return name
}
