package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/pkg/apperr"
)

type GroupChatRepo struct {
	coll *mongo.Collection
}

func NewGroupChatRepo(db *mongo.Database) *GroupChatRepo {
	return &GroupChatRepo{coll: db.Collection(collGroupChats)}
}

func (r *GroupChatRepo) GetByID(ctx context.Context, id string) (*models.GroupChat, error) {
	var g models.GroupChat
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// FindMember returns the membership row for (group, user), or nil when
// the user is not a member.
func (r *GroupChatRepo) FindMember(ctx context.Context, groupID, userID string) (*models.GroupChatMember, error) {
	g, err := r.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Member(userID), nil
}

func (r *GroupChatRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	g, err := r.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.MemberIDs(), nil
}

func (r *GroupChatRepo) SetLastMessageSeq(ctx context.Context, id string, seq int64) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$max":         bson.M{"last_message_seq": seq},
		"$currentDate": bson.M{"updated_at": true},
	})
	return err
}

// AddMember inserts a membership row. One row per (group, user) pair.
func (r *GroupChatRepo) AddMember(ctx context.Context, groupID, userID string, role models.GroupRole) error {
	g, err := r.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Member(userID) != nil {
		return apperr.New(apperr.CodeAlreadyExists, "user is already a member")
	}
	member := models.GroupChatMember{UserID: userID, Role: role, JoinedAt: time.Now().UTC()}
	_, err = r.coll.UpdateByID(ctx, groupID, bson.M{
		"$push":        bson.M{"members": member},
		"$currentDate": bson.M{"updated_at": true},
	})
	return err
}

// checkRemoval enforces the group invariants: the group keeps at least
// two members, and a sole admin cannot remove themself.
func checkRemoval(g *models.GroupChat, userID, actorID string) error {
	m := g.Member(userID)
	if m == nil {
		return apperr.NotFound("user is not a member")
	}
	if len(g.Members) <= 2 {
		return apperr.FailedPrecondition("group chat must keep at least two members")
	}
	if userID == actorID && m.Role == models.RoleAdmin && g.AdminCount() == 1 {
		return apperr.FailedPrecondition("sole admin cannot leave the group")
	}
	return nil
}

func (r *GroupChatRepo) RemoveMember(ctx context.Context, groupID, userID string, actorID string) error {
	g, err := r.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := checkRemoval(g, userID, actorID); err != nil {
		return err
	}
	_, err = r.coll.UpdateByID(ctx, groupID, bson.M{
		"$pull":        bson.M{"members": bson.M{"user_id": userID}},
		"$currentDate": bson.M{"updated_at": true},
	})
	return err
}
