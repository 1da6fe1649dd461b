package archive

import (
	"time"

	"github.com/wolfman30/booking-assistant/internal/booking"
)

// SessionRecord is the document archived when a session closes.
type SessionRecord struct {
	Version     string    `json:"version"`
	SessionID   string    `json:"session_id"`
	Type        string    `json:"type"`
	Language    string    `json:"language"`
	Model       string    `json:"model,omitempty"`
	FellBack    bool      `json:"fell_back"`
	StartedAt   time.Time `json:"started_at"`
	ClosedAt    time.Time `json:"closed_at"`
	Outcome     string    `json:"outcome"`
	Appointment string    `json:"appointment_id,omitempty"`
	Department  string    `json:"department,omitempty"`
	Messages    []Message `json:"messages"`
}

// Message is one archived turn.
type Message struct {
	Role      string    `json:"role"`
	Tool      string    `json:"tool,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session outcomes.
const (
	OutcomeBooked    = "booked"
	OutcomeAbandoned = "abandoned"
	OutcomeChat      = "chat"
)

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID    string `json:"session_id"`
	// SessionHash joins manifest lines with analytics exports that never see raw ids.
	SessionHash  string `json:"session_hash"`
	S3Key        string `json:"s3_key"`
	Type         string `json:"type"`
	Outcome      string `json:"outcome"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count"`
}

// MessagesFromTurns converts a turn log into archive messages.
func MessagesFromTurns(turns []booking.Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: string(t.Role), Tool: t.Tool, Content: t.Text, Timestamp: t.CreatedAt})
	}
	return out
}
