package transcripts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Collection names per transcript type.
const (
	chatCollection  = "conversations"
	voiceCollection = "voice_conversations"
)

// MongoStore writes chat and voice transcripts to separate collections.
type MongoStore struct {
	db     *mongo.Database
	tracer trace.Tracer
	now    func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	if db == nil {
		panic("transcripts: mongo database cannot be nil")
	}
	return &MongoStore{
		db:     db,
		tracer: otel.Tracer("booking.internal.transcripts.mongo"),
		now:    time.Now,
	}
}

func (s *MongoStore) Upsert(ctx context.Context, sessionID, kind string, messages []string) error {
	if sessionID == "" {
		return errors.New("transcripts: session id required")
	}
	ctx, span := s.tracer.Start(ctx, "transcripts.mongo.upsert")
	defer span.End()

	kind = kindOrDefault(kind)
	filter, update := upsertDocuments(sessionID, kind, messages, s.now().UTC())
	opts := options.Update().SetUpsert(true)
	if _, err := s.db.Collection(collectionFor(kind)).UpdateOne(ctx, filter, update, opts); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcripts: mongo upsert %s: %w", sessionID, err)
	}
	return nil
}

// Get looks in the voice collection first, then chat.
func (s *MongoStore) Get(ctx context.Context, sessionID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "transcripts.mongo.get")
	defer span.End()

	for _, name := range []string{voiceCollection, chatCollection} {
		var rec Record
		err := s.db.Collection(name).FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			span.RecordError(err)
			return Record{}, fmt.Errorf("transcripts: mongo load %s: %w", sessionID, err)
		}
	}
	return Record{}, ErrNotFound
}

// upsertDocuments replaces the transcript and stamps start time only on insert.
func upsertDocuments(sessionID, kind string, messages []string, now time.Time) (bson.M, bson.M) {
	if messages == nil {
		messages = []string{}
	}
	filter := bson.M{"sessionId": sessionID}
	update := bson.M{
		"$set": bson.M{
			"transcript":  messages,
			"lastUpdated": now,
		},
		"$setOnInsert": bson.M{
			"sessionId": sessionID,
			"type":      kind,
			"startTime": now,
		},
	}
	return filter, update
}

func collectionFor(kind string) string {
	if kind == TypeVoice {
		return voiceCollection
	}
	return chatCollection
}
