package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	transcriptKeyPrefix = "transcript:"
	transcriptTTL       = 30 * 24 * time.Hour
)

// RedisStore keeps each transcript in a hash.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("transcripts: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("booking.internal.transcripts.redis"),
		now:    time.Now,
	}
}

func (s *RedisStore) Upsert(ctx context.Context, sessionID, kind string, messages []string) error {
	if sessionID == "" {
		return errors.New("transcripts: session id required")
	}
	ctx, span := s.tracer.Start(ctx, "transcripts.redis.upsert")
	defer span.End()

	if messages == nil {
		messages = []string{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcripts: marshal messages: %w", err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)

	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.HSetNX(ctx, key, "start_time", now)
	pipe.HSetNX(ctx, key, "type", kindOrDefault(kind))
	pipe.HSet(ctx, key, "messages", data, "last_updated", now)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcripts: upsert %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "transcripts.redis.get")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, transcriptKey(sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("transcripts: load %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{SessionID: sessionID, Type: fields["type"]}
	if err := json.Unmarshal([]byte(fields["messages"]), &rec.Messages); err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("transcripts: decode messages: %w", err)
	}
	rec.StartTime, _ = time.Parse(time.RFC3339Nano, fields["start_time"])
	rec.LastUpdated, _ = time.Parse(time.RFC3339Nano, fields["last_updated"])
	return rec, nil
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
