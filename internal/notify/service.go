package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ErrNoRecipient is returned when the booking desk address is not configured.
var ErrNoRecipient = errors.New("notify: booking desk recipient not configured")

// Service emails the booking desk about confirmed appointments.
type Service struct {
	email  EmailSender
	to     string
	toName string
	logger *logging.Logger
}

// NewService creates a notification service. A nil sender falls back to the stub.
func NewService(email EmailSender, to, toName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{email: email, to: strings.TrimSpace(to), toName: toName, logger: logger}
}

// NotifyAppointment sends the appointment summary to the booking desk.
func (s *Service) NotifyAppointment(ctx context.Context, appt booking.Appointment) error {
	if s.to == "" {
		return ErrNoRecipient
	}
	msg := EmailMessage{
		To:         s.to,
		ToName:     s.toName,
		Subject:    AppointmentSubject(appt),
		Body:       booking.FormatAppointmentSummary(appt),
		HTML:       booking.FormatAppointmentSummaryHTML(appt),
		Categories: []string{"appointment-confirmed", appt.Source},
		Tags: map[string]string{
			"appointment_id": appt.ID,
			"session_id":     appt.SessionID,
			"department":     appt.Department,
		},
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: appointment %s: %w", appt.ID, err)
	}
	s.logger.Info("booking desk notified", "appointment_id", appt.ID, "session_id", appt.SessionID)
	return nil
}

// AppointmentSubject is the email subject for a confirmed appointment.
func AppointmentSubject(appt booking.Appointment) string {
	doctor := appt.DoctorName
	if strings.TrimSpace(doctor) == "" {
		doctor = booking.DefaultDoctor
	}
	return fmt.Sprintf("New appointment: %s with %s (%s)", appt.PatientName, doctor, appt.TimeSlot)
}
