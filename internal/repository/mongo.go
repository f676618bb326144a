package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

const (
	collMessages      = "messages"
	collDirectChats   = "direct_chats"
	collGroupChats    = "group_chats"
	collPins          = "pinned_messages"
	collPushEndpoints = "push_endpoints"
	collUsers         = "users"
	collStickers      = "stickers"
	collMedia         = "media"
	collCounters      = "counters"
	collKeyEnvelopes  = "key_envelopes"
)

func NewMongoClient(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}
