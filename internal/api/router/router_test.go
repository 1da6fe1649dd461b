package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-assistant/internal/appointments"
	"github.com/wolfman30/booking-assistant/internal/availability"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/healthchat"
	"github.com/wolfman30/booking-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-assistant/internal/http/middleware"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/internal/tools"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

type echoProvider struct{}

func (echoProvider) StartSession(_ context.Context, _ string, _ dialogue.Instruction) (dialogue.ModelSession, error) {
	return echoSession{}, nil
}

type echoSession struct{}

func (echoSession) SendText(_ context.Context, _ string) (dialogue.ProviderResponse, error) {
	return dialogue.ProviderResponse{Text: `{"text":"Hello there","speech":"Hello there"}`}, nil
}

func (echoSession) SendFunctionResult(_ context.Context, _ string, _ map[string]any) (dialogue.ProviderResponse, error) {
	return dialogue.ProviderResponse{Text: `{"text":"Done","speech":"Done"}`}, nil
}

func (echoSession) SendStream(_ context.Context, _ string, onChunk func(string)) (string, error) {
	onChunk("Rest well.")
	return "Rest well.", nil
}

func newTestRouter(t *testing.T, ready func(*http.Request) error) http.Handler {
	t.Helper()

	logger := logging.Default()
	store := transcripts.NewMemoryStore()
	appts := appointments.NewMemoryStore()
	client := dialogue.NewClient(dialogue.ClientConfig{Provider: echoProvider{}, PrimaryModel: "primary", FallbackModel: "secondary", Logger: logger})
	slots := availability.NewStaticProvider(availability.DefaultSlots())

	orch := orchestrator.New(orchestrator.Config{
		Dialogue:     client,
		Tools:        tools.NewExecutor(tools.Config{Slots: slots, Appointments: appts, Logger: logger}),
		Availability: slots,
		Transcripts:  store,
		Logger:       logger,
	})
	chat := healthchat.NewService(healthchat.Config{Dialogue: client, Transcripts: store, Logger: logger})

	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger: logger,
		Sessions: handlers.NewSessionsHandler(handlers.SessionsHandlerConfig{
			Booking:      orch,
			Chat:         chat,
			Transcripts:  store,
			Appointments: appts,
			Logger:       logger,
		}),
		VoiceSocket:    handlers.NewVoiceSocket(orch, logger),
		ChatStream:     handlers.NewChatStream(chat, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Readiness:      ready,
		RateLimiter:    httpmiddleware.NewRateLimiter(100, 100),
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get(httpmiddleware.RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestRouterReadiness(t *testing.T) {
	router := newTestRouter(t, func(*http.Request) error { return errors.New("redis down") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterBookingTurn(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"language":"en-US"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		SessionID string `json:"sessionId"`
		Mode      string `json:"mode"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Mode != "booking" || created.SessionID == "" {
		t.Fatalf("unexpected session %+v", created)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/"+created.SessionID+"/turns", strings.NewReader(`{"text":"hi"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Hello there") {
		t.Errorf("expected reply text, got %s", rr.Body.String())
	}
}

func TestRouterChatStream(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"mode":"chat"}`)))
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/"+created.SessionID+"/stream", strings.NewReader(`{"message":"tired"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "event: done") {
		t.Errorf("expected done event, got %s", rr.Body.String())
	}
}

func TestRouterUnknownSession(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
