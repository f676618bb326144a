package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vanchien08/thunderchat/internal/models"
)

type PushEndpointRepo struct {
	coll *mongo.Collection
}

func NewPushEndpointRepo(db *mongo.Database) *PushEndpointRepo {
	return &PushEndpointRepo{coll: db.Collection(collPushEndpoints)}
}

func (r *PushEndpointRepo) ListByUser(ctx context.Context, userID string) ([]models.PushEndpoint, error) {
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.PushEndpoint{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PushEndpointRepo) Register(ctx context.Context, userID, url, auth string) (*models.PushEndpoint, error) {
	ep := &models.PushEndpoint{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       url,
		Auth:      auth,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (r *PushEndpointRepo) Remove(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
