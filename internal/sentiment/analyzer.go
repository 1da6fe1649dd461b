// Package sentiment scores a conversation before its appointment is stored.
package sentiment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// DefaultLabel and DefaultConfidence are used whenever scoring fails.
const (
	DefaultLabel      = "Neutral"
	DefaultConfidence = 0.5
)

// Result is a sentiment label and a confidence in [0, 1].
type Result struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Default returns the neutral fallback result.
func Default() Result {
	return Result{Label: DefaultLabel, Confidence: DefaultConfidence}
}

// Analyzer asks a model for a one-shot sentiment judgement.
type Analyzer struct {
	provider dialogue.Provider
	modelID  string
	timeout  time.Duration
	logger   *logging.Logger
}

// NewAnalyzer creates an analyzer. A zero timeout means five seconds.
func NewAnalyzer(provider dialogue.Provider, modelID string, timeout time.Duration, logger *logging.Logger) *Analyzer {
	if provider == nil {
		panic("sentiment: provider cannot be nil")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Analyzer{provider: provider, modelID: modelID, timeout: timeout, logger: logger}
}

// Analyze never fails; any provider or parse problem yields Default().
func (a *Analyzer) Analyze(ctx context.Context, transcript []string) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	session, err := a.provider.StartSession(ctx, a.modelID, dialogue.Instruction{JSONOutput: true})
	if err != nil {
		a.logger.Warn("sentiment skipped", "error", err)
		return Default()
	}
	resp, err := session.SendText(ctx, Prompt(transcript))
	if err != nil {
		a.logger.Warn("sentiment skipped", "error", err)
		return Default()
	}
	result, ok := Parse(resp.Text)
	if !ok {
		a.logger.Warn("sentiment reply unparseable", "body", resp.Text)
	}
	return result
}

// Prompt renders the scoring request.
func Prompt(transcript []string) string {
	return "Analyze sentiment: " + strings.Join(transcript, "\n") + `. Return JSON { "sentiment": "...", "confidence": 0.0 }`
}

// Parse decodes a model reply, returning Default() and false when it cannot.
func Parse(body string) (Result, bool) {
	var r Result
	raw := dialogue.ExtractJSONObject(dialogue.StripCodeFence(body))
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Default(), false
	}
	r.Label = strings.TrimSpace(r.Label)
	if r.Label == "" {
		return Default(), false
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r, true
}
