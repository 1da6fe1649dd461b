package bootstrap

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// SpeechStack is the selected set of speech backends. Any field may be nil.
type SpeechStack struct {
	Synthesizer speech.Synthesizer
	Streamer    speech.StreamRecognizer
	Transcriber speech.Transcriber
	Close       Closer
}

// BuildSpeech wires OpenAI voice and Whisper when an API key is present,
// Google streaming recognition when credentials resolve, and the local
// synthesizer as the output fallback.
func BuildSpeech(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.BookingMetrics) SpeechStack {
	if logger == nil {
		logger = logging.Default()
	}
	stack := SpeechStack{Close: noopClose}

	var local speech.Synthesizer
	if bin := strings.TrimSpace(cfg.LocalTTSBinary); bin != "" {
		local = speech.NewLocalSynthesizer(bin)
	}

	var whisper speech.Transcriber
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		stack.Synthesizer = speech.NewFallbackSynthesizer(speech.NewOpenAISynthesizer(client, cfg.OpenAITTSModel), local, logger, m)
		whisper = speech.NewWhisperTranscriber(client, cfg.OpenAISTTModel)
		logger.Info("openai speech enabled", "tts_model", cfg.OpenAITTSModel, "stt_model", cfg.OpenAISTTModel)
	} else if local != nil {
		stack.Synthesizer = local
		logger.Warn("no openai key configured; using local speech output only")
	}

	var google *speech.GoogleRecognizer
	if strings.TrimSpace(cfg.GoogleSpeechCredentialsFile) != "" {
		g, err := speech.NewGoogleRecognizer(ctx, cfg.GoogleSpeechCredentialsFile, 16000)
		if err != nil {
			logger.Warn("google speech unavailable", "error", err)
		} else {
			google = g
			stack.Streamer = g
			stack.Close = func(context.Context) error { return g.Close() }
			logger.Info("google streaming recognition enabled")
		}
	}

	switch {
	case whisper != nil && google != nil:
		stack.Transcriber = speech.NewFallbackTranscriber(whisper, google, logger, m)
	case whisper != nil:
		stack.Transcriber = whisper
	case google != nil:
		stack.Transcriber = google
	}
	return stack
}
