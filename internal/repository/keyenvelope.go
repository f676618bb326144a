package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vanchien08/thunderchat/internal/keyring"
)

// KeyEnvelopeRepo persists the single active key-material envelope.
type KeyEnvelopeRepo struct {
	coll *mongo.Collection
}

func NewKeyEnvelopeRepo(db *mongo.Database) *KeyEnvelopeRepo {
	return &KeyEnvelopeRepo{coll: db.Collection(collKeyEnvelopes)}
}

func (r *KeyEnvelopeRepo) Load(ctx context.Context) (*keyring.Envelope, error) {
	var env keyring.Envelope
	if err := r.coll.FindOne(ctx, bson.M{"_id": keyring.EnvelopeID}).Decode(&env); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &env, nil
}

func (r *KeyEnvelopeRepo) Save(ctx context.Context, env *keyring.Envelope) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": env.ID}, env, opts)
	return err
}
