package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ErrEmptyAudio is returned when a backend produced no audio bytes.
var ErrEmptyAudio = errors.New("speech: empty audio payload")

// Audio is synthesized speech.
type Audio struct {
	Data    []byte
	Format  string
	Backend string
}

// Synthesizer turns reply text into audio for a locale.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (Audio, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// LocalSynthesizer shells out to an espeak-compatible binary that writes WAV
// to stdout.
type LocalSynthesizer struct {
	binary string
	run    commandRunner
	voices map[string]string
}

// NewLocalSynthesizer uses espeak-ng when binary is empty.
func NewLocalSynthesizer(binary string) *LocalSynthesizer {
	if strings.TrimSpace(binary) == "" {
		binary = "espeak-ng"
	}
	return &LocalSynthesizer{
		binary: binary,
		run:    execRunner,
		voices: map[string]string{
			"en-US": "en-us",
			"ml-IN": "ml",
		},
	}
}

// Name identifies the backend.
func (s *LocalSynthesizer) Name() string { return "local" }

// Voice picks the closest installed voice, falling back to the language
// prefix and then English.
func (s *LocalSynthesizer) Voice(language string) string {
	if v, ok := s.voices[language]; ok {
		return v
	}
	if lang := isoLanguage(language); lang != "" {
		return lang
	}
	return "en-us"
}

// Synthesize implements Synthesizer.
func (s *LocalSynthesizer) Synthesize(ctx context.Context, text, language string) (Audio, error) {
	out, err := s.run(ctx, s.binary, "-v", s.Voice(language), "--stdout", text)
	if err != nil {
		return Audio{}, fmt.Errorf("speech: local synthesis: %w", err)
	}
	if len(out) == 0 {
		return Audio{}, fmt.Errorf("speech: local synthesis: %w", ErrEmptyAudio)
	}
	return Audio{Data: out, Format: "wav", Backend: s.Name()}, nil
}

// FallbackSynthesizer tries the primary backend and then the fallback.
type FallbackSynthesizer struct {
	primary  Synthesizer
	fallback Synthesizer
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewFallbackSynthesizer wraps primary. A nil fallback disables fallback.
func NewFallbackSynthesizer(primary, fallback Synthesizer, logger *logging.Logger, m *metrics.BookingMetrics) *FallbackSynthesizer {
	if primary == nil {
		panic("speech: primary synthesizer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackSynthesizer{primary: primary, fallback: fallback, logger: logger, metrics: m}
}

func (s *FallbackSynthesizer) Synthesize(ctx context.Context, text, language string) (Audio, error) {
	audio, err := s.primary.Synthesize(ctx, text, language)
	if err == nil {
		return audio, nil
	}
	if ctx.Err() != nil || s.fallback == nil {
		return Audio{}, err
	}

	s.logger.Warn("primary synthesis failed, using local voice", "error", err.Error(), "language", language)
	s.metrics.ObserveSpeechFallback("synthesis")
	audio, fallbackErr := s.fallback.Synthesize(ctx, text, language)
	if fallbackErr != nil {
		s.logger.Error("fallback synthesis also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Audio{}, fallbackErr
	}
	return audio, nil
}

// FallbackTranscriber tries the primary single-shot recognizer and then the fallback.
type FallbackTranscriber struct {
	primary  Transcriber
	fallback Transcriber
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

func NewFallbackTranscriber(primary, fallback Transcriber, logger *logging.Logger, m *metrics.BookingMetrics) *FallbackTranscriber {
	if primary == nil {
		panic("speech: primary transcriber cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackTranscriber{primary: primary, fallback: fallback, logger: logger, metrics: m}
}

func (t *FallbackTranscriber) Transcribe(ctx context.Context, language string, audio []byte) (string, error) {
	text, err := t.primary.Transcribe(ctx, language, audio)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil || t.fallback == nil {
		return "", err
	}
	t.logger.Warn("primary recognition failed, retrying with fallback", "error", err.Error())
	t.metrics.ObserveSpeechFallback("capture")
	return t.fallback.Transcribe(ctx, language, audio)
}
