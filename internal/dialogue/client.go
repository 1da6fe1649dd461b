package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Provider      Provider
	PrimaryModel  string
	FallbackModel string
	Logger        *logging.Logger
	Metrics       *metrics.BookingMetrics
	Tracer        trace.Tracer
}

// Client opens per-session conversations against a primary model with a
// single fallback to a secondary model.
type Client struct {
	provider      Provider
	primaryModel  string
	fallbackModel string
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
	tracer        trace.Tracer
}

// NewClient creates a dialogue client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Provider == nil {
		panic("dialogue: provider cannot be nil")
	}
	if strings.TrimSpace(cfg.PrimaryModel) == "" {
		panic("dialogue: primary model is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("booking.internal.dialogue")
	}
	return &Client{
		provider:      cfg.Provider,
		primaryModel:  cfg.PrimaryModel,
		fallbackModel: strings.TrimSpace(cfg.FallbackModel),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}
}

// NewConversation returns a conversation handle. The underlying model session
// is created on the first send.
func (c *Client) NewConversation(inst Instruction, logger *logging.Logger) *Conversation {
	if logger == nil {
		logger = c.logger
	}
	return &Conversation{
		client:      c,
		instruction: inst,
		logger:      logger,
		modelID:     c.primaryModel,
	}
}

// Conversation owns one model session. Calls are serialized.
type Conversation struct {
	client      *Client
	instruction Instruction
	logger      *logging.Logger

	mu      sync.Mutex
	session ModelSession
	modelID string
	pinned  bool
}

// Model returns the model id the conversation is currently bound to.
func (cv *Conversation) Model() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.modelID
}

// FellBack reports whether the conversation has been pinned to the fallback model.
func (cv *Conversation) FellBack() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.pinned
}

// Send forwards a user utterance and returns the parsed reply.
func (cv *Conversation) Send(ctx context.Context, utterance string) (Reply, error) {
	send := func(s ModelSession) (ProviderResponse, error) {
		return s.SendText(ctx, utterance)
	}
	return cv.exchange(ctx, "dialogue.send", send, send)
}

// SendToolResult answers the model's pending function call with result. When
// the exchange has to be replayed on a fresh fallback session there is no
// pending call to answer, so the result is sent as a JSON text message.
func (cv *Conversation) SendToolResult(ctx context.Context, name, result string) (Reply, error) {
	payload := map[string]any{"result": result}
	send := func(s ModelSession) (ProviderResponse, error) {
		return s.SendFunctionResult(ctx, name, payload)
	}
	replay := func(s ModelSession) (ProviderResponse, error) {
		data, err := json.Marshal(payload)
		if err != nil {
			return ProviderResponse{}, err
		}
		return s.SendText(ctx, string(data))
	}
	return cv.exchange(ctx, "dialogue.send_tool_result", send, replay)
}

// Stream sends text and relays reply deltas to onChunk. It shares the
// fallback rules of Send. When a failed primary attempt is replayed on the
// fallback model, onRestart runs first so callers can drop the deltas they
// already received.
func (cv *Conversation) Stream(ctx context.Context, text string, onChunk func(string), onRestart func()) (string, error) {
	var full string
	send := func(s ModelSession) (ProviderResponse, error) {
		out, err := s.SendStream(ctx, text, onChunk)
		full = out
		return ProviderResponse{Text: out}, err
	}
	replay := func(s ModelSession) (ProviderResponse, error) {
		if onRestart != nil {
			onRestart()
		}
		return send(s)
	}
	if _, err := cv.roundTrip(ctx, "dialogue.stream", send, replay); err != nil {
		return full, err
	}
	return full, nil
}

func (cv *Conversation) exchange(ctx context.Context, op string, send, replay func(ModelSession) (ProviderResponse, error)) (Reply, error) {
	resp, err := cv.roundTrip(ctx, op, send, replay)
	if err != nil {
		return Reply{}, err
	}
	reply, perr := ParseReply(resp)
	if perr != nil {
		cv.logger.Warn("model reply degraded to raw text", "error", perr, "model", cv.Model())
	}
	return reply, nil
}

func (cv *Conversation) roundTrip(ctx context.Context, op string, send, replay func(ModelSession) (ProviderResponse, error)) (ProviderResponse, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	ctx, span := cv.client.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("dialogue.model", cv.modelID))

	resp, err := cv.attempt(ctx, send)
	if err == nil {
		return resp, nil
	}
	span.RecordError(err)

	if !cv.canFallback(err) {
		return ProviderResponse{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	primary := cv.modelID
	cv.logger.Warn("primary model failed, attempting fallback",
		"error", err.Error(),
		"model", primary,
		"fallback_model", cv.client.fallbackModel,
	)
	// The conversation stays on the fallback model from here on, whether or
	// not this attempt succeeds.
	cv.session = nil
	cv.modelID = cv.client.fallbackModel
	cv.pinned = true
	span.SetAttributes(attribute.String("dialogue.fallback_model", cv.modelID))

	resp, fallbackErr := cv.attempt(ctx, replay)
	if fallbackErr != nil {
		cv.client.metrics.ObserveModelFallback("failed")
		cv.logger.Error("fallback model also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		span.RecordError(fallbackErr)
		return ProviderResponse{}, fmt.Errorf("%w: %w", ErrModelUnavailable, fallbackErr)
	}

	cv.client.metrics.ObserveModelFallback("succeeded")
	cv.logger.Info("fallback model succeeded after primary failure", "model", cv.modelID)
	return resp, nil
}

// attempt lazily opens the session for the current model and runs fn on it.
func (cv *Conversation) attempt(ctx context.Context, fn func(ModelSession) (ProviderResponse, error)) (ProviderResponse, error) {
	if cv.session == nil {
		session, err := cv.client.provider.StartSession(ctx, cv.modelID, cv.instruction)
		if err != nil {
			return ProviderResponse{}, fmt.Errorf("dialogue: start session on %s: %w", cv.modelID, err)
		}
		cv.session = session
	}
	return fn(cv.session)
}

func (cv *Conversation) canFallback(err error) bool {
	if cv.pinned || cv.client.fallbackModel == "" || cv.client.fallbackModel == cv.modelID {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
