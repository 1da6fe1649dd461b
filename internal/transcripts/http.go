package transcripts

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/booking-assistant/internal/backend"
)

// HTTPStore posts transcripts to the records service. Voice and chat
// transcripts go to different endpoints.
type HTTPStore struct {
	client *backend.Client
}

func NewHTTPStore(client *backend.Client) *HTTPStore {
	if client == nil {
		panic("transcripts: backend client cannot be nil")
	}
	return &HTTPStore{client: client}
}

type logConversationRequest struct {
	SessionID string   `json:"sessionId"`
	Messages  []string `json:"messages"`
	Type      string   `json:"type,omitempty"`
}

type logResponse struct {
	Success bool `json:"success"`
}

func (s *HTTPStore) Upsert(ctx context.Context, sessionID, kind string, messages []string) error {
	if sessionID == "" {
		return errors.New("transcripts: session id required")
	}
	if messages == nil {
		messages = []string{}
	}
	kind = kindOrDefault(kind)
	path := backend.PathLogConversation
	if kind == TypeVoice {
		path = backend.PathLogVoiceConversation
	}
	var resp logResponse
	if err := s.client.PostJSON(ctx, path, logConversationRequest{SessionID: sessionID, Messages: messages, Type: kind}, &resp); err != nil {
		return fmt.Errorf("transcripts: log conversation: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("transcripts: records service rejected transcript %s", sessionID)
	}
	return nil
}
