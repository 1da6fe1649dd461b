package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const subscriberBuffer = 64

// session is one arena entry. The conversation handle is owned here and never
// shared across sessions.
type session struct {
	id        string
	language  string
	createdAt time.Time
	logger    *logging.Logger
	conv      *dialogue.Conversation

	mu          sync.Mutex
	state       State
	seq         uint64
	turns       []booking.Turn
	draft       booking.Draft
	capture     *speech.Capture
	speakCancel context.CancelFunc
	subs        map[int]chan Event
	nextSub     int
	persisted   chan struct{}
	closed      bool
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID        string         `json:"sessionId"`
	State     State          `json:"state"`
	Language  string         `json:"language"`
	Model     string         `json:"model"`
	FellBack  bool           `json:"fellBack"`
	Turns     []booking.Turn `json:"turns"`
	Draft     booking.Draft  `json:"draft"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        s.id,
		State:     s.state,
		Language:  s.language,
		Model:     s.conv.Model(),
		FellBack:  s.conv.FellBack(),
		Turns:     append([]booking.Turn(nil), s.turns...),
		Draft:     s.draft,
		CreatedAt: s.createdAt,
	}
}

// setStateLocked records a transition and tells subscribers.
func (s *session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("session state changed", "from", s.state.String(), "to", st.String())
	s.state = st
	s.publishLocked(Event{Type: EventState})
}

// publishLocked fans ev out without blocking. Slow subscribers miss events.
func (s *session) publishLocked(ev Event) {
	ev.SessionID = s.id
	ev.State = s.state
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("subscriber event dropped", "subscriber", id, "type", string(ev.Type))
		}
	}
}

func (s *session) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(ev)
}

func (s *session) subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	if s.subs == nil {
		s.subs = make(map[int]chan Event)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *session) closeSubscribersLocked() {
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *session) appendTurn(t booking.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// linesLocked renders the turn log in transcript form.
func (s *session) linesLocked(assistantName string) []string {
	return booking.TranscriptLines(s.turns, assistantName)
}
