package orchestrator

import "fmt"

// State is a session's position in the booking state machine.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateThinking
	StateToolRound
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateThinking:
		return "thinking"
	case StateToolRound:
		return "tool_round"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by String.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateError; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown state %q", b)
}

// busy reports whether a model call is in flight.
func (s State) busy() bool {
	return s == StateThinking || s == StateToolRound
}

// EventType classifies events delivered to subscribers.
type EventType string

const (
	EventState   EventType = "state"
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventReply   EventType = "reply"
	EventAudio   EventType = "audio"
	EventError   EventType = "error"
)

// Event is published to a session's subscribers. Audio is base64 in JSON.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"sessionId"`
	State       State     `json:"state"`
	Text        string    `json:"text,omitempty"`
	Speech      string    `json:"speech,omitempty"`
	Audio       []byte    `json:"audio,omitempty"`
	AudioFormat string    `json:"audioFormat,omitempty"`
	Error       string    `json:"error,omitempty"`
}
