package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/models"
)

type PinRepo struct {
	coll *mongo.Collection
}

func NewPinRepo(db *mongo.Database, log *zap.SugaredLogger) *PinRepo {
	coll := db.Collection(collPins)
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "scope_id", Value: 1}, {Key: "message_seq", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("scope_message_idx"),
	}
	// the unique index backs the single-pin upsert; surface its absence
	if _, err := coll.Indexes().CreateOne(context.Background(), ix); err != nil {
		log.Warnw("create pin index", "err", err)
	}
	return &PinRepo{coll: coll}
}

func (r *PinRepo) Find(ctx context.Context, scopeID string, messageSeq int64) (*models.PinnedMessage, error) {
	var p models.PinnedMessage
	err := r.coll.FindOne(ctx, bson.M{"scope_id": scopeID, "message_seq": messageSeq}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PinRepo) ListActive(ctx context.Context, scopeID string) ([]*models.PinnedMessage, error) {
	cur, err := r.coll.Find(ctx, bson.M{"scope_id": scopeID, "is_pinned": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.PinnedMessage{}
	for cur.Next(ctx) {
		var p models.PinnedMessage
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

// SetPinned upserts the (scope, message) record with the given flag and
// returns the stored state.
func (r *PinRepo) SetPinned(ctx context.Context, scopeID string, messageSeq int64, actorID string, pinned bool) (*models.PinnedMessage, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"is_pinned":  pinned,
			"pinned_by":  actorID,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":       uuid.NewString(),
			"pinned_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var p models.PinnedMessage
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"scope_id": scopeID, "message_seq": messageSeq}, update, opts).Decode(&p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UnpinAll clears every active pin in a scope. Used by the single-pin
// policy before pinning a new message.
func (r *PinRepo) UnpinAll(ctx context.Context, scopeID string) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"scope_id": scopeID, "is_pinned": true},
		bson.M{"$set": bson.M{"is_pinned": false}, "$currentDate": bson.M{"updated_at": true}},
	)
	return err
}
