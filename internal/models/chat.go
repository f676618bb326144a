package models

import "time"

// DirectChat is a two-party conversation. LastMessageSeq is a denormalized
// cursor used for chat-list ordering.
type DirectChat struct {
	ID             string    `bson:"_id" json:"id"`
	UserAID        string    `bson:"user_a_id" json:"user_a_id"`
	UserBID        string    `bson:"user_b_id" json:"user_b_id"`
	LastMessageSeq int64     `bson:"last_message_seq" json:"last_message_seq"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// HasMember reports whether uid is one of the two parties.
func (d *DirectChat) HasMember(uid string) bool {
	return uid == d.UserAID || uid == d.UserBID
}

// Peer returns the other party of the chat.
func (d *DirectChat) Peer(uid string) string {
	if uid == d.UserAID {
		return d.UserBID
	}
	return d.UserAID
}

type GroupChat struct {
	ID             string            `bson:"_id" json:"id"`
	Name           string            `bson:"name" json:"name"`
	Members        []GroupChatMember `bson:"members" json:"members"`
	LastMessageSeq int64             `bson:"last_message_seq" json:"last_message_seq"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
}

type GroupRole string

const (
	RoleAdmin  GroupRole = "ADMIN"
	RoleMember GroupRole = "MEMBER"
)

// GroupChatMember binds a user to a group with a role. One row per
// (group, user) pair.
type GroupChatMember struct {
	UserID   string    `bson:"user_id" json:"user_id"`
	Role     GroupRole `bson:"role" json:"role"`
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
}

func (g *GroupChat) Member(uid string) *GroupChatMember {
	for i := range g.Members {
		if g.Members[i].UserID == uid {
			return &g.Members[i]
		}
	}
	return nil
}

func (g *GroupChat) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for i := range g.Members {
		ids = append(ids, g.Members[i].UserID)
	}
	return ids
}

func (g *GroupChat) AdminCount() int {
	n := 0
	for i := range g.Members {
		if g.Members[i].Role == RoleAdmin {
			n++
		}
	}
	return n
}
