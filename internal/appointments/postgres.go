package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/internal/booking"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore writes appointments to the appointments table.
type PostgresStore struct {
	db     rowQuerier
	tracer trace.Tracer
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return newPostgresStoreWithQuerier(pool)
}

func newPostgresStoreWithQuerier(db rowQuerier) *PostgresStore {
	if db == nil {
		panic("appointments: querier required")
	}
	return &PostgresStore{db: db, tracer: otel.Tracer("booking.internal.appointments")}
}

// Save inserts appt.
func (s *PostgresStore) Save(ctx context.Context, appt booking.Appointment) error {
	ctx, span := s.tracer.Start(ctx, "appointments.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.session_id", appt.SessionID),
		attribute.String("appointment.department", appt.Department),
	)

	id, err := uuid.Parse(appt.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: invalid id %q: %w", appt.ID, err)
	}
	createdAt := appt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO appointments (id, session_id, patient_name, department, doctor_name, symptoms, time_slot, source, sentiment, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := s.db.Exec(ctx, query,
		toPGUUID(id),
		appt.SessionID,
		appt.PatientName,
		appt.Department,
		appt.DoctorName,
		appt.Symptoms,
		appt.TimeSlot,
		appt.Source,
		toPGText(appt.Sentiment),
		toPGFloat(appt.Sentiment, appt.Confidence),
		toPGTime(createdAt),
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// ListBySession returns the appointments written for a session, oldest first.
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]booking.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.list_by_session")
	defer span.End()

	query := `
		SELECT id::text, session_id, patient_name, department, doctor_name, symptoms, time_slot, source, sentiment, confidence, created_at
		FROM appointments
		WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []booking.Appointment
	for rows.Next() {
		var (
			appt       booking.Appointment
			sentiment  pgtype.Text
			confidence pgtype.Float8
		)
		if err := rows.Scan(
			&appt.ID,
			&appt.SessionID,
			&appt.PatientName,
			&appt.Department,
			&appt.DoctorName,
			&appt.Symptoms,
			&appt.TimeSlot,
			&appt.Source,
			&sentiment,
			&confidence,
			&appt.CreatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		appt.Sentiment = sentiment.String
		appt.Confidence = confidence.Float64
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return out, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t,
		Valid: true,
	}
}

func toPGText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPGFloat stores confidence only alongside a sentiment label.
func toPGFloat(label string, f float64) pgtype.Float8 {
	if label == "" {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}
