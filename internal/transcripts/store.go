// Package transcripts persists dialogue transcripts keyed by session id.
// Writing the same session again replaces its message list.
package transcripts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Transcript types.
const (
	TypeVoice = "voice"
	TypeChat  = "chat"
)

// ErrNotFound is returned by readers for unknown sessions.
var ErrNotFound = errors.New("transcripts: session not found")

// Record is one stored transcript.
type Record struct {
	SessionID   string    `json:"sessionId" bson:"sessionId"`
	Type        string    `json:"type" bson:"type"`
	Messages    []string  `json:"messages" bson:"transcript"`
	StartTime   time.Time `json:"startTime" bson:"startTime"`
	LastUpdated time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

// Store upserts transcripts.
type Store interface {
	Upsert(ctx context.Context, sessionID, kind string, messages []string) error
}

// Reader loads a stored transcript.
type Reader interface {
	Get(ctx context.Context, sessionID string) (Record, error)
}

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Upsert(_ context.Context, sessionID, kind string, messages []string) error {
	if sessionID == "" {
		return errors.New("transcripts: session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	rec, ok := s.records[sessionID]
	if !ok {
		rec = Record{SessionID: sessionID, Type: kindOrDefault(kind), StartTime: now}
	}
	rec.Messages = append([]string(nil), messages...)
	rec.LastUpdated = now
	s.records[sessionID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Messages = append([]string(nil), rec.Messages...)
	return rec, nil
}

// Len reports how many sessions are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return TypeChat
	}
	return kind
}
