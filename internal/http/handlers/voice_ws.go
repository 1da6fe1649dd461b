package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Inbound voice socket message types.
const (
	wsStart  = "start"
	wsAudio  = "audio"
	wsStop   = "stop"
	wsText   = "text"
	wsCancel = "cancel"
	wsPing   = "ping"
)

const wsPong orchestrator.EventType = "pong"

// VoiceMessage is what a voice client sends. Audio is base64 in JSON.
type VoiceMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio []byte `json:"audio,omitempty"`
}

// VoiceSocket streams a booking session over a websocket: microphone audio
// in, session events out.
type VoiceSocket struct {
	booking BookingService
	logger  *logging.Logger
}

func NewVoiceSocket(svc BookingService, logger *logging.Logger) *VoiceSocket {
	if svc == nil {
		panic("handlers: booking service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceSocket{booking: svc, logger: logger}
}

// ServeHTTP handles GET /sessions/{id}/ws.
func (v *VoiceSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, unsubscribe, err := v.booking.Subscribe(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer unsubscribe()

	websocket.Handler(func(conn *websocket.Conn) {
		v.serve(conn, id, events)
	}).ServeHTTP(w, r)
}

type voiceConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *voiceConn) send(ev orchestrator.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, ev)
}

func (v *VoiceSocket) serve(conn *websocket.Conn, id string, events <-chan orchestrator.Event) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vc := &voiceConn{conn: conn}
	logger := v.logger.WithSession(id)
	logger.Info("voice socket opened")

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close()
					return
				}
				if err := vc.send(ev); err != nil {
					logger.Debug("voice socket send failed", "error", err)
					return
				}
			}
		}
	}()

	sendErr := func(err error) {
		_ = vc.send(orchestrator.Event{Type: orchestrator.EventError, SessionID: id, Error: err.Error()})
	}

	for {
		var msg VoiceMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("voice socket closed", "error", err)
			if cerr := v.booking.CancelCapture(id); cerr != nil && !errors.Is(cerr, orchestrator.ErrSessionNotFound) {
				logger.Debug("cancel capture on disconnect failed", "error", cerr)
			}
			cancel()
			return
		}

		switch msg.Type {
		case wsPing:
			_ = vc.send(orchestrator.Event{Type: wsPong, SessionID: id})
		case wsStart:
			if err := v.booking.StartCapture(ctx, id); err != nil {
				sendErr(err)
			}
		case wsAudio:
			if err := v.booking.WriteAudio(id, msg.Audio); err != nil {
				sendErr(err)
			}
		case wsCancel:
			if err := v.booking.CancelCapture(id); err != nil {
				sendErr(err)
			}
		case wsStop:
			// The turn outcome reaches the client through subscribed events.
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := v.booking.StopCapture(ctx, id); err != nil {
					sendErr(err)
				}
			}()
		case wsText:
			text := msg.Text
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := v.booking.SubmitText(ctx, id, text); err != nil {
					sendErr(err)
				}
			}()
		default:
			sendErr(errors.New("unknown message type " + msg.Type))
		}
	}
}
