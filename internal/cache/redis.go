package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the redis presence cache shared with other services.
type Client struct {
	rdb    *redis.Client
	prefix string
}

func New(addr, password string, db int, prefix string) *Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Client{rdb: rdb, prefix: prefix}
}

func (c *Client) key(userID string) string {
	return c.prefix + ":presence:" + userID
}

func (c *Client) SetPresence(ctx context.Context, userID string, online bool) error {
	if online {
		return c.rdb.Set(ctx, c.key(userID), "1", 0).Err()
	}
	return c.rdb.Del(ctx, c.key(userID)).Err()
}

func (c *Client) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }
