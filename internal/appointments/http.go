package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/booking-assistant/internal/backend"
	"github.com/wolfman30/booking-assistant/internal/booking"
)

// HTTPStore posts appointments to the records service.
type HTTPStore struct {
	client *backend.Client
}

func NewHTTPStore(client *backend.Client) *HTTPStore {
	if client == nil {
		panic("appointments: backend client cannot be nil")
	}
	return &HTTPStore{client: client}
}

type logAppointmentRequest struct {
	PatientName string  `json:"patientName"`
	Department  string  `json:"department"`
	DoctorName  string  `json:"doctorName"`
	Symptoms    string  `json:"symptoms"`
	TimeSlot    string  `json:"timeSlot"`
	Source      string  `json:"source"`
	Sentiment   string  `json:"sentiment,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	SessionID   string  `json:"sessionId,omitempty"`
}

type logResponse struct {
	Success bool `json:"success"`
}

// Save posts to /log-appointment.
func (s *HTTPStore) Save(ctx context.Context, appt booking.Appointment) error {
	req := logAppointmentRequest{
		PatientName: appt.PatientName,
		Department:  appt.Department,
		DoctorName:  appt.DoctorName,
		Symptoms:    appt.Symptoms,
		TimeSlot:    appt.TimeSlot,
		Source:      appt.Source,
		Sentiment:   appt.Sentiment,
		Confidence:  appt.Confidence,
		CreatedAt:   appt.CreatedAt.UTC().Format(time.RFC3339),
		SessionID:   appt.SessionID,
	}
	var resp logResponse
	if err := s.client.PostJSON(ctx, backend.PathLogAppointment, req, &resp); err != nil {
		return fmt.Errorf("appointments: log appointment: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("appointments: records service rejected appointment %s", appt.ID)
	}
	return nil
}
