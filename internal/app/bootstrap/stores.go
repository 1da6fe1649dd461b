package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/appointments"
	"github.com/wolfman30/booking-assistant/internal/availability"
	"github.com/wolfman30/booking-assistant/internal/backend"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
	"github.com/wolfman30/booking-assistant/internal/tools"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Closer releases a backend connection on shutdown.
type Closer func(ctx context.Context) error

// Pinger checks that a backend is reachable. Nil means nothing to check.
type Pinger func(ctx context.Context) error

// TranscriptBackend is the selected transcript store. Reader is nil when the
// backend cannot be read back.
type TranscriptBackend struct {
	Store  transcripts.Store
	Reader transcripts.Reader
	Ping   Pinger
	Close  Closer
}

// AppointmentBackend is the selected appointment store. Lister is nil when the
// backend cannot be read back.
type AppointmentBackend struct {
	Store  appointments.Store
	Lister appointments.Lister
	Ping   Pinger
	Close  Closer
}

func noopClose(context.Context) error { return nil }

// BuildTranscriptStore selects the transcript store named by TRANSCRIPT_BACKEND.
func BuildTranscriptStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (TranscriptBackend, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TranscriptBackend)) {
	case "", "memory":
		store := transcripts.NewMemoryStore()
		return TranscriptBackend{Store: store, Reader: store, Close: noopClose}, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return TranscriptBackend{}, fmt.Errorf("bootstrap: redis transcript backend unavailable at %q", cfg.RedisAddr)
		}
		store := transcripts.NewRedisStore(client)
		logger.Info("transcripts stored in redis", "addr", cfg.RedisAddr)
		return TranscriptBackend{
			Store:  store,
			Reader: store,
			Ping:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close:  func(context.Context) error { return client.Close() },
		}, nil
	case "mongo":
		client, db, err := BuildMongoDatabase(ctx, cfg)
		if err != nil {
			return TranscriptBackend{}, err
		}
		store := transcripts.NewMongoStore(db)
		logger.Info("transcripts stored in mongo", "database", cfg.MongoDatabase)
		return TranscriptBackend{
			Store:  store,
			Reader: store,
			Ping:   func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close:  client.Disconnect,
		}, nil
	case "http":
		if strings.TrimSpace(cfg.TranscriptURL) == "" {
			return TranscriptBackend{}, fmt.Errorf("bootstrap: TRANSCRIPT_URL is required for the http transcript backend")
		}
		store := transcripts.NewHTTPStore(backend.NewClient(cfg.TranscriptURL, nil, logger))
		return TranscriptBackend{Store: store, Close: noopClose}, nil
	default:
		return TranscriptBackend{}, fmt.Errorf("bootstrap: unknown transcript backend %q", cfg.TranscriptBackend)
	}
}

// BuildAppointmentStore selects the appointment store named by APPOINTMENT_BACKEND.
func BuildAppointmentStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (AppointmentBackend, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AppointmentBackend)) {
	case "", "memory":
		store := appointments.NewMemoryStore()
		return AppointmentBackend{Store: store, Lister: store, Close: noopClose}, nil
	case "postgres":
		pool, err := BuildPostgresPool(ctx, cfg)
		if err != nil {
			return AppointmentBackend{}, err
		}
		store := appointments.NewPostgresStore(pool)
		logger.Info("appointments stored in postgres")
		return AppointmentBackend{
			Store:  store,
			Lister: store,
			Ping:   pool.Ping,
			Close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	case "http":
		if strings.TrimSpace(cfg.AppointmentURL) == "" {
			return AppointmentBackend{}, fmt.Errorf("bootstrap: APPOINTMENT_URL is required for the http appointment backend")
		}
		store := appointments.NewHTTPStore(backend.NewClient(cfg.AppointmentURL, nil, logger))
		return AppointmentBackend{Store: store, Close: noopClose}, nil
	default:
		return AppointmentBackend{}, fmt.Errorf("bootstrap: unknown appointment backend %q", cfg.AppointmentBackend)
	}
}

// BuildAvailability selects the slot source named by AVAILABILITY_SOURCE.
func BuildAvailability(cfg *appconfig.Config, logger *logging.Logger) (tools.SlotSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.AvailabilitySource)) {
	case "", "static":
		if strings.TrimSpace(cfg.AvailabilityFile) == "" {
			return availability.NewStaticProvider(nil), nil
		}
		p, err := availability.LoadStaticFile(cfg.AvailabilityFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load availability file: %w", err)
		}
		return p, nil
	case "http":
		if strings.TrimSpace(cfg.AvailabilityURL) == "" {
			return nil, fmt.Errorf("bootstrap: AVAILABILITY_URL is required for the http availability source")
		}
		return availability.NewHTTPProvider(backend.NewClient(cfg.AvailabilityURL, nil, logger)), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown availability source %q", cfg.AvailabilitySource)
	}
}
