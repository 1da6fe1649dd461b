// Package appointments persists committed bookings.
package appointments

import (
	"context"
	"sync"

	"github.com/wolfman30/booking-assistant/internal/booking"
)

// Store writes appointments. It does not deduplicate.
type Store interface {
	Save(ctx context.Context, appt booking.Appointment) error
}

// Lister reads back the appointments written for a session.
type Lister interface {
	ListBySession(ctx context.Context, sessionID string) ([]booking.Appointment, error)
}

// MemoryStore keeps appointments in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	saved []booking.Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, appt booking.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, appt)
	return nil
}

// All returns the appointments saved so far, oldest first.
func (s *MemoryStore) All() []booking.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.Appointment, len(s.saved))
	copy(out, s.saved)
	return out
}

// ListBySession returns the appointments saved for sessionID.
func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Appointment
	for _, a := range s.saved {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}
