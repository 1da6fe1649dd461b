package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-assistant/internal/api/router"
	"github.com/wolfman30/booking-assistant/internal/archive"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/healthchat"
	"github.com/wolfman30/booking-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-assistant/internal/http/middleware"
	"github.com/wolfman30/booking-assistant/internal/notify"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/internal/sentiment"
	"github.com/wolfman30/booking-assistant/internal/tools"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Options carries collaborators that callers may override. Provider replaces
// the Gemini provider; Registry replaces the default prometheus registry.
type Options struct {
	Logger   *logging.Logger
	Provider dialogue.Provider
	Registry *prometheus.Registry
	// DisableSpeech skips every speech backend.
	DisableSpeech bool
}

// App is the wired booking assistant.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Chat         *healthchat.Service
	Handler      http.Handler
	Limiter      *httpmiddleware.RateLimiter

	logger  *logging.Logger
	closers []Closer
}

// Build wires every component from configuration.
func Build(ctx context.Context, cfg *appconfig.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.NewBookingMetrics(reg)

	app := &App{logger: logger}
	fail := func(err error) (*App, error) {
		_ = app.Close(context.Background())
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		gemini, err := dialogue.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: %w", err))
		}
		app.closers = append(app.closers, func(context.Context) error { return gemini.Close() })
		provider = gemini
	}

	transcriptBackend, err := BuildTranscriptStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, transcriptBackend.Close)

	appointmentBackend, err := BuildAppointmentStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, appointmentBackend.Close)

	slots, err := BuildAvailability(cfg, logger)
	if err != nil {
		return fail(err)
	}

	var stack SpeechStack
	if !opts.DisableSpeech {
		stack = BuildSpeech(ctx, cfg, logger, m)
		app.closers = append(app.closers, stack.Close)
	}

	archiver, err := BuildArchiver(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	execCfg := tools.Config{
		Slots:          slots,
		Appointments:   appointmentBackend.Store,
		Sentiment:      sentiment.NewAnalyzer(provider, cfg.GeminiFallbackModel, 0, logger),
		AllowRebooking: cfg.AllowRebooking,
		PersistTimeout: cfg.PersistTimeout,
		Logger:         logger,
		Metrics:        m,
	}
	if notifier := BuildNotifier(cfg, logger); notifier != nil {
		execCfg.Notifier = notifier
	}

	bookingClient := dialogue.NewClient(dialogue.ClientConfig{
		Provider:      provider,
		PrimaryModel:  cfg.GeminiPrimaryModel,
		FallbackModel: cfg.GeminiFallbackModel,
		Logger:        logger,
		Metrics:       m,
	})
	chatClient := dialogue.NewClient(dialogue.ClientConfig{
		Provider:      provider,
		PrimaryModel:  cfg.GeminiChatModel,
		FallbackModel: cfg.GeminiFallbackModel,
		Logger:        logger,
		Metrics:       m,
	})

	app.Orchestrator = orchestrator.New(orchestrator.Config{
		Dialogue:        bookingClient,
		Tools:           tools.NewExecutor(execCfg),
		Availability:    slots,
		Transcripts:     transcriptBackend.Store,
		Archiver:        archiver,
		Synthesizer:     stack.Synthesizer,
		Streamer:        stack.Streamer,
		Transcriber:     stack.Transcriber,
		AssistantName:   cfg.AssistantName,
		HospitalName:    cfg.HospitalName,
		DefaultLanguage: cfg.DefaultLanguage,
		TurnTimeout:     cfg.TurnTimeout,
		PersistTimeout:  cfg.PersistTimeout,
		Logger:          logger,
		Metrics:         m,
	})
	app.Chat = healthchat.NewService(healthchat.Config{
		Dialogue:       chatClient,
		Transcripts:    transcriptBackend.Store,
		AssistantName:  cfg.AssistantName,
		HospitalName:   cfg.HospitalName,
		ReplyTimeout:   cfg.TurnTimeout,
		PersistTimeout: cfg.PersistTimeout,
		Logger:         logger,
		Metrics:        m,
	})

	sessionsCfg := handlers.SessionsHandlerConfig{
		Booking: app.Orchestrator,
		Chat:    app.Chat,
		Logger:  logger,
	}
	if transcriptBackend.Reader != nil {
		sessionsCfg.Transcripts = transcriptBackend.Reader
	}
	if appointmentBackend.Lister != nil {
		sessionsCfg.Appointments = appointmentBackend.Lister
	}

	if cfg.RateLimitRPS > 0 {
		app.Limiter = httpmiddleware.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	pingers := []Pinger{transcriptBackend.Ping, appointmentBackend.Ping}
	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Sessions:           handlers.NewSessionsHandler(sessionsCfg),
		VoiceSocket:        handlers.NewVoiceSocket(app.Orchestrator, logger),
		ChatStream:         handlers.NewChatStream(app.Chat, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Readiness:          readiness(pingers),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        app.Limiter,
	})

	logger.Info("booking assistant wired",
		"primary_model", cfg.GeminiPrimaryModel,
		"fallback_model", cfg.GeminiFallbackModel,
		"transcripts", cfg.TranscriptBackend,
		"appointments", cfg.AppointmentBackend,
		"availability", cfg.AvailabilitySource,
		"archive", archiver.Enabled(),
	)
	return app, nil
}

// BuildArchiver returns an S3 archive store, disabled when ARCHIVE_BUCKET is empty.
func BuildArchiver(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*archive.Store, error) {
	if strings.TrimSpace(cfg.ArchiveBucket) == "" {
		return archive.NewStore(nil, "", logger), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return archive.NewStore(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, logger), nil
}

// BuildNotifier returns the booking desk notifier, or nil when no recipient
// is configured. Without a SendGrid key messages go to the log.
func BuildNotifier(cfg *appconfig.Config, logger *logging.Logger) *notify.Service {
	if strings.TrimSpace(cfg.BookingNotifyEmail) == "" {
		return nil
	}
	var sender notify.EmailSender
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
			ReplyTo:   cfg.SendGridReplyTo,
		}, logger)
	}
	return notify.NewService(sender, cfg.BookingNotifyEmail, "Booking Desk", logger)
}

func readiness(pingers []Pinger) func(r *http.Request) error {
	return func(r *http.Request) error {
		var errs []error
		for _, ping := range pingers {
			if ping == nil {
				continue
			}
			if err := ping(r.Context()); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Shutdown drains in-flight sessions and persistence, then releases backends.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Orchestrator != nil {
		if err := a.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Chat != nil {
		if err := a.Chat.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases backend connections in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] == nil {
			continue
		}
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("backend close reported errors", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
