package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/healthchat"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const maxAudioUpload = 10 << 20

// Session modes accepted by POST /sessions.
const (
	ModeBooking = "booking"
	ModeChat    = "chat"
)

// BookingService is the voice booking orchestrator.
type BookingService interface {
	CreateSession(ctx context.Context, opts orchestrator.SessionOptions) (orchestrator.Snapshot, error)
	Snapshot(id string) (orchestrator.Snapshot, error)
	SubmitText(ctx context.Context, id, text string) (orchestrator.Result, error)
	SubmitAudio(ctx context.Context, id string, audio []byte) (orchestrator.Result, error)
	StartCapture(ctx context.Context, id string) error
	WriteAudio(id string, chunk []byte) error
	StopCapture(ctx context.Context, id string) (orchestrator.Result, error)
	CancelCapture(id string) error
	Subscribe(id string) (<-chan orchestrator.Event, func(), error)
	CloseSession(ctx context.Context, id string) error
}

// ChatService is the streaming health chat.
type ChatService interface {
	CreateSession() healthchat.Snapshot
	Snapshot(id string) (healthchat.Snapshot, error)
	Send(ctx context.Context, id, message string, onChunk func(string)) (booking.Turn, error)
	Close(id string) error
}

// TranscriptSource loads stored transcripts.
type TranscriptSource interface {
	Get(ctx context.Context, sessionID string) (transcripts.Record, error)
}

// AppointmentLister lists appointments committed by a session.
type AppointmentLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]booking.Appointment, error)
}

// SessionsHandler serves /sessions.
type SessionsHandler struct {
	booking      BookingService
	chat         ChatService
	transcripts  TranscriptSource
	appointments AppointmentLister
	logger       *logging.Logger
}

// SessionsHandlerConfig wires a SessionsHandler. Chat, Transcripts and
// Appointments are optional.
type SessionsHandlerConfig struct {
	Booking      BookingService
	Chat         ChatService
	Transcripts  TranscriptSource
	Appointments AppointmentLister
	Logger       *logging.Logger
}

func NewSessionsHandler(cfg SessionsHandlerConfig) *SessionsHandler {
	if cfg.Booking == nil {
		panic("handlers: booking service cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SessionsHandler{
		booking:      cfg.Booking,
		chat:         cfg.Chat,
		transcripts:  cfg.Transcripts,
		appointments: cfg.Appointments,
		logger:       cfg.Logger,
	}
}

type createSessionRequest struct {
	Language string `json:"language"`
	Mode     string `json:"mode"`
}

type bookingSessionResponse struct {
	Mode string `json:"mode"`
	orchestrator.Snapshot
}

type turnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	DisplayText string               `json:"displayText"`
	SpeechText  string               `json:"speechText"`
	Audio       []byte               `json:"audio,omitempty"`
	AudioFormat string               `json:"audioFormat,omitempty"`
	State       orchestrator.State   `json:"state"`
	Failed      bool                 `json:"failed"`
	Appointment *booking.Appointment `json:"appointment,omitempty"`
}

func newTurnResponse(res orchestrator.Result) turnResponse {
	out := turnResponse{
		DisplayText: res.Reply.DisplayText,
		SpeechText:  res.Reply.SpeechText,
		State:       res.State,
		Failed:      res.Failed,
		Appointment: res.Appointment,
	}
	if res.Audio != nil {
		out.Audio = res.Audio.Data
		out.AudioFormat = res.Audio.Format
	}
	return out
}

// Create handles POST /sessions.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", ModeBooking:
		snap, err := h.booking.CreateSession(r.Context(), orchestrator.SessionOptions{Language: req.Language})
		if err != nil {
			h.logger.Error("create booking session failed", "error", err)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bookingSessionResponse{Mode: ModeBooking, Snapshot: snap})
	case ModeChat:
		if h.chat == nil {
			writeError(w, http.StatusNotImplemented, "health chat is not enabled")
			return
		}
		writeJSON(w, http.StatusCreated, h.chat.CreateSession())
	default:
		writeError(w, http.StatusBadRequest, "mode must be booking or chat")
	}
}

// Get handles GET /sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.booking.Snapshot(id)
	if err == nil {
		writeJSON(w, http.StatusOK, bookingSessionResponse{Mode: ModeBooking, Snapshot: snap})
		return
	}
	if h.chat != nil && errors.Is(err, orchestrator.ErrSessionNotFound) {
		chatSnap, chatErr := h.chat.Snapshot(id)
		if chatErr == nil {
			writeJSON(w, http.StatusOK, chatSnap)
			return
		}
	}
	writeDomainError(w, err)
}

// SubmitTurn handles POST /sessions/{id}/turns.
func (h *SessionsHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.booking.SubmitText(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(res))
}

// SubmitAudio handles POST /sessions/{id}/audio with a multipart "audio" file.
func (h *SessionsHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field audio is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "audio upload is empty or unreadable")
		return
	}

	res, err := h.booking.SubmitAudio(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(res))
}

// Close handles DELETE /sessions/{id}.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.booking.CloseSession(r.Context(), id)
	if h.chat != nil && errors.Is(err, orchestrator.ErrSessionNotFound) {
		err = h.chat.Close(id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transcript handles GET /sessions/{id}/transcript.
func (h *SessionsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		writeError(w, http.StatusNotImplemented, "transcript store is not readable")
		return
	}
	rec, err := h.transcripts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Appointments handles GET /sessions/{id}/appointments.
func (h *SessionsHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	if h.appointments == nil {
		writeError(w, http.StatusNotImplemented, "appointment store is not readable")
		return
	}
	appts, err := h.appointments.ListBySession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeDomainError(w, err)
		return
	}
	if appts == nil {
		appts = []booking.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}
