package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SequenceRepo allocates strictly increasing message identifiers.
// Assignment order is the single source of delivery ordering truth.
type SequenceRepo struct {
	coll *mongo.Collection
}

func NewSequenceRepo(db *mongo.Database) *SequenceRepo {
	return &SequenceRepo{coll: db.Collection(collCounters)}
}

// Next atomically increments and returns the named counter.
func (r *SequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}
