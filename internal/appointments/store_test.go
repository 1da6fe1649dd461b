package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/backend"
	"github.com/wolfman30/booking-assistant/internal/booking"
)

func sampleAppointment() booking.Appointment {
	return booking.Appointment{
		ID:          "0b4a3c2e-8f51-4f0e-9d1e-0f6a7c9e2b11",
		SessionID:   "sess-1",
		PatientName: "Asha",
		Department:  "General Medicine",
		DoctorName:  "Dr. Smith",
		Symptoms:    "fever",
		TimeSlot:    "Thu, Jan 8 at 10:00 AM",
		Source:      booking.SourceVoice,
		Sentiment:   "Anxious",
		Confidence:  0.7,
		CreatedAt:   time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC),
	}
}

func TestPostgresStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	appt := sampleAppointment()

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "sess-1", "Asha", "General Medicine", "Dr. Smith", "fever", "Thu, Jan 8 at 10:00 AM", "voice", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Save(context.Background(), appt))

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	err = store.Save(context.Background(), appt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appointments: insert")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSaveRejectsBadID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := sampleAppointment()
	appt.ID = "not-a-uuid"
	require.Error(t, newPostgresStoreWithQuerier(mock).Save(context.Background(), appt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListBySession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "session_id", "patient_name", "department", "doctor_name", "symptoms", "time_slot", "source", "sentiment", "confidence", "created_at"}).
		AddRow("0b4a3c2e-8f51-4f0e-9d1e-0f6a7c9e2b11", "sess-1", "Asha", "General Medicine", "Dr. Smith", "fever", "10:00 AM", "voice", "Calm", 0.9, created)
	mock.ExpectQuery("FROM appointments").WithArgs("sess-1").WillReturnRows(rows)

	got, err := newPostgresStoreWithQuerier(mock).ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Calm", got[0].Sentiment)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, created, got[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTPStoreSave(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/log-appointment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	store := NewHTTPStore(backend.NewClient(srv.URL, nil, nil))
	require.NoError(t, store.Save(context.Background(), sampleAppointment()))
	assert.Equal(t, "Asha", body["patientName"])
	assert.Equal(t, "voice", body["source"])
	assert.Equal(t, "Anxious", body["sentiment"])
	assert.Equal(t, "2026-01-07T10:00:00Z", body["createdAt"])
}

func TestHTTPStoreUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	require.Error(t, NewHTTPStore(backend.NewClient(srv.URL, nil, nil)).Save(context.Background(), sampleAppointment()))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save(context.Background(), sampleAppointment()))
	other := sampleAppointment()
	other.SessionID = "sess-2"
	require.NoError(t, s.Save(context.Background(), other))

	got, err := s.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, s.All(), 2)
}
