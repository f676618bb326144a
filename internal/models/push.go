package models

import "time"

// PushEndpoint is an out-of-band notification destination. A user may
// register several; delivery is evaluated per endpoint.
type PushEndpoint struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	URL       string    `bson:"url" json:"url"`
	Auth      string    `bson:"auth,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
