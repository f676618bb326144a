// Package fanout distributes finalized messages to the live audience of
// their conversation scope and defers offline recipients to push.
package fanout

import (
	"context"

	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/push"
	"github.com/vanchien08/thunderchat/internal/registry"
)

const (
	EventSendMessageDirect = "send_message:direct"
	EventSendMessageGroup  = "send_message:group"

	// notification kind attached to message pushes; config
	// push.always_kinds may force these past online suppression.
	kindMessage = "message"
)

type Emitter interface {
	Emit(ctx context.Context, target registry.Target, event string, payload interface{})
}

type Presence interface {
	IsOnline(userID string) bool
}

type Notifier interface {
	Notify(ctx context.Context, userID string, payload push.Payload)
}

type DirectChatStore interface {
	GetByID(ctx context.Context, id string) (*models.DirectChat, error)
	SetLastMessageSeq(ctx context.Context, id string, seq int64) error
}

type GroupChatStore interface {
	MemberIDs(ctx context.Context, id string) ([]string, error)
	SetLastMessageSeq(ctx context.Context, id string, seq int64) error
}

// Router fans a durably created message out to its audience. Route is
// invoked exactly once per message, in sequence order per scope.
type Router struct {
	emitter     Emitter
	presence    Presence
	notifier    Notifier
	directs     DirectChatStore
	groups      GroupChatStore
	alwaysKinds map[string]bool
	log         *zap.SugaredLogger
}

func NewRouter(emitter Emitter, presence Presence, notifier Notifier, directs DirectChatStore, groups GroupChatStore, alwaysKinds []string, log *zap.SugaredLogger) *Router {
	always := make(map[string]bool, len(alwaysKinds))
	for _, k := range alwaysKinds {
		always[k] = true
	}
	return &Router{
		emitter:     emitter,
		presence:    presence,
		notifier:    notifier,
		directs:     directs,
		groups:      groups,
		alwaysKinds: always,
		log:         log,
	}
}

func (r *Router) Route(ctx context.Context, m *models.Message) {
	if m.DirectChatID != "" {
		r.routeDirect(ctx, m)
		return
	}
	r.routeGroup(ctx, m)
}

func (r *Router) routeDirect(ctx context.Context, m *models.Message) {
	if err := r.directs.SetLastMessageSeq(ctx, m.DirectChatID, m.Seq); err != nil {
		r.log.Errorw("advance direct chat cursor", "chat_id", m.DirectChatID, "err", err)
	}
	// both participants receive the event; the author's other devices
	// rely on it for multi-device sync
	r.emitter.Emit(ctx, registry.DirectChat(m.DirectChatID), EventSendMessageDirect, m)
	metrics.FanoutEmits.WithLabelValues(EventSendMessageDirect).Inc()

	chat, err := r.directs.GetByID(ctx, m.DirectChatID)
	if err != nil {
		r.log.Errorw("load direct chat for push", "chat_id", m.DirectChatID, "err", err)
		return
	}
	r.maybePush(ctx, m, []string{chat.Peer(m.SenderID)})
}

func (r *Router) routeGroup(ctx context.Context, m *models.Message) {
	if err := r.groups.SetLastMessageSeq(ctx, m.GroupChatID, m.Seq); err != nil {
		r.log.Errorw("advance group chat cursor", "chat_id", m.GroupChatID, "err", err)
	}
	// member set is resolved live inside the registry at emit time
	r.emitter.Emit(ctx, registry.GroupChat(m.GroupChatID), EventSendMessageGroup, m)
	metrics.FanoutEmits.WithLabelValues(EventSendMessageGroup).Inc()

	members, err := r.groups.MemberIDs(ctx, m.GroupChatID)
	if err != nil {
		r.log.Errorw("load group members for push", "chat_id", m.GroupChatID, "err", err)
		return
	}
	targets := make([]string, 0, len(members))
	for _, uid := range members {
		if uid != m.SenderID {
			targets = append(targets, uid)
		}
	}
	r.maybePush(ctx, m, targets)
}

// maybePush hands offline recipients to the dispatcher. A fanout that
// reached zero live connections is not an error; push is the fallback
// delivery path. Pushes for recipients with live connections are
// suppressed unless the kind is configured as always-pushed.
func (r *Router) maybePush(ctx context.Context, m *models.Message, recipients []string) {
	payload := push.Payload{
		Kind:         kindMessage,
		MessageSeq:   m.Seq,
		SenderID:     m.SenderID,
		DirectChatID: m.DirectChatID,
		GroupChatID:  m.GroupChatID,
	}
	// detach from the request: push outcome never affects the sender
	bg := context.WithoutCancel(ctx)
	for _, uid := range recipients {
		if r.presence.IsOnline(uid) && !r.alwaysKinds[payload.Kind] {
			continue
		}
		uid := uid
		go r.notifier.Notify(bg, uid, payload)
	}
}
