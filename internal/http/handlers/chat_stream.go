package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

type chatMessageRequest struct {
	Message string `json:"message"`
}

// ChatStream serves health chat replies as server-sent events.
type ChatStream struct {
	chat   ChatService
	logger *logging.Logger
}

func NewChatStream(svc ChatService, logger *logging.Logger) *ChatStream {
	if svc == nil {
		panic("handlers: chat service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatStream{chat: svc, logger: logger}
}

// ServeHTTP handles POST /chat/{id}/stream. Each chunk event carries the
// accumulated reply so far. A reset event tells the client to drop the text
// it has shown because the reply is being regenerated. A final done event
// carries the stored turn.
func (c *ChatStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")

	// Validate before committing to an event stream.
	if _, err := c.chat.Snapshot(id); err != nil {
		writeDomainError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}
	emit := func(event string, payload any) {
		start()
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		if err := rc.Flush(); err != nil {
			c.logger.Debug("sse flush failed", "error", err)
		}
	}

	turn, err := c.chat.Send(r.Context(), id, req.Message, func(text string) {
		if text == "" {
			emit("reset", struct{}{})
			return
		}
		emit("chunk", map[string]string{"text": text})
	})
	if err != nil {
		if !started {
			writeDomainError(w, err)
			return
		}
		emit("error", map[string]string{"error": err.Error()})
		return
	}
	emit("done", turn)
}

// Message handles POST /chat/{id}/messages and answers with the complete
// assistant turn once streaming finishes.
func (c *ChatStream) Message(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	turn, err := c.chat.Send(r.Context(), chi.URLParam(r, "id"), req.Message, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}
