package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vanchien08/thunderchat/internal/models"
)

type DirectChatRepo struct {
	coll *mongo.Collection
}

func NewDirectChatRepo(db *mongo.Database) *DirectChatRepo {
	return &DirectChatRepo{coll: db.Collection(collDirectChats)}
}

func (r *DirectChatRepo) GetByID(ctx context.Context, id string) (*models.DirectChat, error) {
	var d models.DirectChat
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// SetLastMessageSeq advances the denormalized chat-list cursor. $max
// keeps the update atomic under concurrent sends in the same chat.
func (r *DirectChatRepo) SetLastMessageSeq(ctx context.Context, id string, seq int64) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$max":         bson.M{"last_message_seq": seq},
		"$currentDate": bson.M{"updated_at": true},
	})
	return err
}

// PeersOf lists the other party of every direct chat the user is in.
func (r *DirectChatRepo) PeersOf(ctx context.Context, userID string) ([]string, error) {
	cur, err := r.coll.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"user_a_id": userID},
		bson.M{"user_b_id": userID},
	}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	seen := map[string]bool{}
	var out []string
	for cur.Next(ctx) {
		var d models.DirectChat
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		peer := d.Peer(userID)
		if !seen[peer] {
			seen[peer] = true
			out = append(out, peer)
		}
	}
	return out, cur.Err()
}

func (r *DirectChatRepo) Members(ctx context.Context, id string) ([]string, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return []string{d.UserAID, d.UserBID}, nil
}
