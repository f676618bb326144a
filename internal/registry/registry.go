// Package registry tracks live realtime connections per user and fans
// events out to users and conversation scopes. The registry is injected
// into components that emit; it is never a package-level singleton.
package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Conn is one live realtime connection. Implementations must tolerate
// concurrent Send calls.
type Conn interface {
	Send(event string, payload interface{}) error
}

// MemberResolver resolves the current member set of a conversation
// scope at emit time, so membership changes after message creation are
// honored.
type MemberResolver interface {
	DirectChatMembers(ctx context.Context, chatID string) ([]string, error)
	GroupChatMembers(ctx context.Context, chatID string) ([]string, error)
}

type targetKind int

const (
	targetUser targetKind = iota
	targetDirect
	targetGroup
)

// Target names the audience of an Emit.
type Target struct {
	kind targetKind
	id   string
}

func User(userID string) Target       { return Target{kind: targetUser, id: userID} }
func DirectChat(chatID string) Target { return Target{kind: targetDirect, id: chatID} }
func GroupChat(chatID string) Target  { return Target{kind: targetGroup, id: chatID} }

type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[string]Conn
	resolver MemberResolver
	log      *zap.SugaredLogger
}

func New(resolver MemberResolver, log *zap.SugaredLogger) *Registry {
	return &Registry{
		conns:    make(map[string]map[string]Conn),
		resolver: resolver,
		log:      log,
	}
}

// Register adds a connection and reports whether it is the user's first
// live one (used for online-status broadcast).
func (r *Registry) Register(userID, connID string, c Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byConn, ok := r.conns[userID]
	if !ok {
		byConn = make(map[string]Conn)
		r.conns[userID] = byConn
	}
	byConn[connID] = c
	return len(byConn) == 1
}

// Unregister removes a connection and reports whether the user has no
// live connections left.
func (r *Registry) Unregister(userID, connID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byConn, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(byConn, connID)
	if len(byConn) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Emit sends an event to every live connection of the target audience.
// Emission is fire-and-forget: an absent target or a failing connection
// is never an error.
func (r *Registry) Emit(ctx context.Context, target Target, event string, payload interface{}) {
	switch target.kind {
	case targetUser:
		r.emitUsers([]string{target.id}, event, payload)
	case targetDirect:
		members, err := r.resolver.DirectChatMembers(ctx, target.id)
		if err != nil {
			r.log.Warnw("resolve direct chat members", "chat_id", target.id, "err", err)
			return
		}
		r.emitUsers(members, event, payload)
	case targetGroup:
		members, err := r.resolver.GroupChatMembers(ctx, target.id)
		if err != nil {
			r.log.Warnw("resolve group chat members", "chat_id", target.id, "err", err)
			return
		}
		r.emitUsers(members, event, payload)
	}
}

func (r *Registry) emitUsers(userIDs []string, event string, payload interface{}) {
	r.mu.RLock()
	var conns []Conn
	for _, uid := range userIDs {
		for _, c := range r.conns[uid] {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			r.log.Debugw("emit dropped", "event", event, "err", err)
		}
	}
}
