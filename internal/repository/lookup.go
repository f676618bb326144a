package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vanchien08/thunderchat/internal/models"
)

// LookupRepo serves the read-only references hydrated onto messages:
// author profile, sticker and media records.
type LookupRepo struct {
	users    *mongo.Collection
	stickers *mongo.Collection
	media    *mongo.Collection
}

func NewLookupRepo(db *mongo.Database) *LookupRepo {
	return &LookupRepo{
		users:    db.Collection(collUsers),
		stickers: db.Collection(collStickers),
		media:    db.Collection(collMedia),
	}
}

func (r *LookupRepo) User(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *LookupRepo) Sticker(ctx context.Context, id string) (*models.Sticker, error) {
	var s models.Sticker
	if err := r.stickers.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *LookupRepo) Media(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	if err := r.media.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
