package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/perm"
	"github.com/vanchien08/thunderchat/internal/registry"
	"github.com/vanchien08/thunderchat/internal/repository"
	"github.com/vanchien08/thunderchat/pkg/apperr"
)

// Outbound realtime event names.
const (
	EventMessageSeenDirect = "message_seen:direct"
	EventMessageSeenGroup  = "message_seen:group"
	EventPinMessage        = "pin_message"
	EventPinMessageGroup   = "pin_message:group"
)

type Emitter interface {
	Emit(ctx context.Context, target registry.Target, event string, payload interface{})
}

type PinStore interface {
	Find(ctx context.Context, scopeID string, messageSeq int64) (*models.PinnedMessage, error)
	SetPinned(ctx context.Context, scopeID string, messageSeq int64, actorID string, pinned bool) (*models.PinnedMessage, error)
	UnpinAll(ctx context.Context, scopeID string) error
	ListActive(ctx context.Context, scopeID string) ([]*models.PinnedMessage, error)
}

// StatusService owns the message status state machine and the pin
// toggle, and broadcasts both to the conversation scope.
type StatusService struct {
	messages       MessageStore
	pins           PinStore
	directs        DirectChatStore
	groups         GroupChatStore
	emitter        Emitter
	singlePinScope bool
	log            *zap.SugaredLogger
}

func NewStatusService(messages MessageStore, pins PinStore, directs DirectChatStore, groups GroupChatStore, emitter Emitter, singlePinScope bool, log *zap.SugaredLogger) *StatusService {
	return &StatusService{
		messages:       messages,
		pins:           pins,
		directs:        directs,
		groups:         groups,
		emitter:        emitter,
		singlePinScope: singlePinScope,
		log:            log,
	}
}

// UpdateStatus applies the one-way SENT→SEEN transition. Re-marking a
// SEEN message is a no-op; any other target status is rejected.
func (s *StatusService) UpdateStatus(ctx context.Context, seq int64, status models.MessageStatus) (*models.Message, error) {
	if status != models.MessageStatusSeen {
		return nil, apperr.InvalidArg("message status can only transition to SEEN")
	}
	m, err := s.messages.GetBySeq(ctx, seq)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "load message", err)
	}
	if m.Status == models.MessageStatusSeen {
		return m, nil
	}
	updated, err := s.messages.SetStatus(ctx, seq, models.MessageStatusSeen)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "update message status", err)
	}

	payload := map[string]interface{}{
		"message_id": updated.Seq,
		"status":     updated.Status,
	}
	if updated.DirectChatID != "" {
		payload["direct_chat_id"] = updated.DirectChatID
		s.emitter.Emit(ctx, registry.DirectChat(updated.DirectChatID), EventMessageSeenDirect, payload)
	} else {
		payload["group_chat_id"] = updated.GroupChatID
		s.emitter.Emit(ctx, registry.GroupChat(updated.GroupChatID), EventMessageSeenGroup, payload)
	}
	return updated, nil
}

// TogglePin flips the active pin flag for (scope, message) and
// broadcasts the result. With the single-pin policy, pinning a message
// unpins the scope's previous active pin in the same logical operation.
func (s *StatusService) TogglePin(ctx context.Context, directChatID, groupChatID string, messageSeq int64, actorID string) (bool, error) {
	if (directChatID == "") == (groupChatID == "") {
		return false, apperr.InvalidArg("exactly one of direct_chat_id and group_chat_id must be set")
	}

	var scopeID string
	var target registry.Target
	var event string
	if directChatID != "" {
		chat, err := s.directs.GetByID(ctx, directChatID)
		if err != nil {
			return false, apperr.Wrap(apperr.CodeNotFound, "direct chat not found", err)
		}
		if !chat.HasMember(actorID) {
			return false, apperr.Forbidden("actor is not a participant of this chat")
		}
		scopeID = models.ScopeKey(directChatID, "")
		target = registry.DirectChat(directChatID)
		event = EventPinMessage
	} else {
		group, err := s.groups.GetByID(ctx, groupChatID)
		if err != nil {
			return false, apperr.Wrap(apperr.CodeNotFound, "group chat not found", err)
		}
		member := group.Member(actorID)
		if member == nil {
			return false, apperr.Forbidden("actor is not a member of this group")
		}
		if !perm.Allows(member.Role, perm.PinMessage) {
			return false, apperr.Forbidden("role may not pin messages in this group")
		}
		scopeID = models.ScopeKey("", groupChatID)
		target = registry.GroupChat(groupChatID)
		event = EventPinMessageGroup
	}

	pinned := true
	existing, err := s.pins.Find(ctx, scopeID, messageSeq)
	switch {
	case err == nil:
		pinned = !existing.IsPinned
	case errors.Is(err, repository.ErrNotFound):
		// first pin of this message
	default:
		return false, apperr.Wrap(apperr.CodeInternal, "load pin state", err)
	}

	if pinned && s.singlePinScope {
		if err := s.pins.UnpinAll(ctx, scopeID); err != nil {
			return false, apperr.Wrap(apperr.CodeInternal, "unpin previous", err)
		}
	}
	p, err := s.pins.SetPinned(ctx, scopeID, messageSeq, actorID, pinned)
	if err != nil {
		return false, apperr.Wrap(apperr.CodeInternal, "store pin state", err)
	}

	s.emitter.Emit(ctx, target, event, map[string]interface{}{
		"message_id": p.MessageSeq,
		"is_pinned":  p.IsPinned,
		"pinned_by":  p.PinnedBy,
	})
	return p.IsPinned, nil
}

// ActivePins lists the scope's currently pinned messages.
func (s *StatusService) ActivePins(ctx context.Context, directChatID, groupChatID string) ([]*models.PinnedMessage, error) {
	if (directChatID == "") == (groupChatID == "") {
		return nil, apperr.InvalidArg("exactly one of direct_chat_id and group_chat_id must be set")
	}
	pins, err := s.pins.ListActive(ctx, models.ScopeKey(directChatID, groupChatID))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list active pins", err)
	}
	return pins, nil
}
