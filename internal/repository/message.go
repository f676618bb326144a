package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/models"
)

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database, log *zap.SugaredLogger) *MessageRepo {
	coll := db.Collection(collMessages)
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "direct_chat_id", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("direct_seq_idx"),
	}
	ix2 := mongo.IndexModel{
		Keys:    bson.D{{Key: "group_chat_id", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("group_seq_idx"),
	}
	// queries still work unindexed, so index failure is not fatal
	if _, err := coll.Indexes().CreateMany(context.Background(), []mongo.IndexModel{ix, ix2}); err != nil {
		log.Warnw("create message indexes", "err", err)
	}
	return &MessageRepo{coll: coll}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MessageRepo) GetBySeq(ctx context.Context, seq int64) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": seq}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetNewer returns messages of one scope with seq strictly greater than
// cursor, in ascending seq order, capped at limit.
func (r *MessageRepo) GetNewer(ctx context.Context, directChatID, groupChatID string, cursor int64, limit int64) ([]*models.Message, error) {
	filter := bson.M{"_id": bson.M{"$gt": cursor}}
	if directChatID != "" {
		filter["direct_chat_id"] = directChatID
	} else {
		filter["group_chat_id"] = groupChatID
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Message{}
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

// SetStatus updates the status field only; message rows are otherwise
// immutable after creation.
func (r *MessageRepo) SetStatus(ctx context.Context, seq int64, status models.MessageStatus) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": seq},
		bson.M{"$set": bson.M{"status": status}, "$currentDate": bson.M{"updated_at": true}},
		opts,
	).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
