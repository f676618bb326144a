package models

import "time"

// PinnedMessage records an active pin for a (scope, message) pair.
// At most one record per pair carries IsPinned=true.
type PinnedMessage struct {
	ID         string    `bson:"_id" json:"id"`
	ScopeID    string    `bson:"scope_id" json:"scope_id"`
	MessageSeq int64     `bson:"message_seq" json:"message_seq"`
	PinnedBy   string    `bson:"pinned_by" json:"pinned_by"`
	IsPinned   bool      `bson:"is_pinned" json:"is_pinned"`
	PinnedAt   time.Time `bson:"pinned_at" json:"pinned_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}
