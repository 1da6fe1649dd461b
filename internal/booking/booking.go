// Package booking holds the domain records shared by the dialogue orchestrator,
// the tool layer and the stores: turns, availability slots, the booking draft
// that accumulates across a conversation, and the committed appointment.
package booking

import (
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source tags where an appointment was captured.
const (
	SourceVoice = "voice"
	SourceChat  = "chat"
)

// DefaultDoctor is recorded when the model confirms without naming a doctor.
const DefaultDoctor = "General"

// Turn is a single entry in a session's turn log. Tool is set when the turn
// records a tool action rather than spoken or typed content.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Tool      string    `json:"tool,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Slot is one bookable doctor/date/time offering.
type Slot struct {
	Doctor     string `json:"doctor" yaml:"doctor"`
	Department string `json:"department" yaml:"department"`
	Date       string `json:"date" yaml:"date"`
	Time       string `json:"time" yaml:"time"`
}

// Label renders the slot the way it is read back to a caller,
// e.g. "Thu, Jan 8 at 10:00 AM with Dr. Smith".
func (s Slot) Label() string {
	date := strings.TrimSpace(s.Date)
	if parsed, err := time.Parse("2006-01-02", date); err == nil {
		date = parsed.Format("Mon, Jan 2")
	}
	return date + " at " + s.Time + " with " + s.Doctor
}

// Draft accumulates booking fields across turns. It is promoted to an
// Appointment once; after that Committed stays true.
type Draft struct {
	PatientName   string    `json:"patientName,omitempty"`
	Symptoms      string    `json:"symptoms,omitempty"`
	Department    string    `json:"department,omitempty"`
	DoctorName    string    `json:"doctorName,omitempty"`
	TimeSlot      string    `json:"timeSlot,omitempty"`
	Committed     bool      `json:"committed"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	CommittedAt   time.Time `json:"committedAt,omitempty"`
}

// Missing lists the required fields that are still empty.
func (d Draft) Missing() []string {
	var missing []string
	if strings.TrimSpace(d.PatientName) == "" {
		missing = append(missing, "patientName")
	}
	if strings.TrimSpace(d.Symptoms) == "" {
		missing = append(missing, "symptoms")
	}
	if strings.TrimSpace(d.Department) == "" {
		missing = append(missing, "department")
	}
	if strings.TrimSpace(d.TimeSlot) == "" {
		missing = append(missing, "timeSlot")
	}
	return missing
}

// Ready reports whether the draft may be committed.
func (d Draft) Ready() bool {
	return len(d.Missing()) == 0
}

// Merge overlays the non-empty fields of other onto d. Commit state is kept.
func (d *Draft) Merge(other Draft) {
	if v := strings.TrimSpace(other.PatientName); v != "" {
		d.PatientName = v
	}
	if v := strings.TrimSpace(other.Symptoms); v != "" {
		d.Symptoms = v
	}
	if v := strings.TrimSpace(other.Department); v != "" {
		d.Department = v
	}
	if v := strings.TrimSpace(other.DoctorName); v != "" {
		d.DoctorName = v
	}
	if v := strings.TrimSpace(other.TimeSlot); v != "" {
		d.TimeSlot = v
	}
}

// Appointment is a committed booking as written to the appointment store.
type Appointment struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	PatientName string    `json:"patientName"`
	Department  string    `json:"department"`
	DoctorName  string    `json:"doctorName"`
	Symptoms    string    `json:"symptoms"`
	TimeSlot    string    `json:"timeSlot"`
	Source      string    `json:"source"`
	Sentiment   string    `json:"sentiment,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewAppointment builds the record for a ready draft.
func NewAppointment(id, sessionID string, d Draft, source string, now time.Time) Appointment {
	doctor := strings.TrimSpace(d.DoctorName)
	if doctor == "" {
		doctor = DefaultDoctor
	}
	return Appointment{
		ID:          id,
		SessionID:   sessionID,
		PatientName: strings.TrimSpace(d.PatientName),
		Department:  strings.TrimSpace(d.Department),
		DoctorName:  doctor,
		Symptoms:    strings.TrimSpace(d.Symptoms),
		TimeSlot:    strings.TrimSpace(d.TimeSlot),
		Source:      source,
		CreatedAt:   now.UTC(),
	}
}
