package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/dedup"
	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/registry"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/pkg/apperr"
)

type MessageSender interface {
	Send(ctx context.Context, in service.CreateMessageInput) (*models.Message, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, seq int64, status models.MessageStatus) (*models.Message, error)
}

type Presence interface {
	SetPresence(ctx context.Context, userID string, online bool) error
}

// PeerLister names the direct-chat peers of a user, the audience of
// online-status broadcasts.
type PeerLister interface {
	PeersOf(ctx context.Context, userID string) ([]string, error)
}

type TokenValidator interface {
	Validate(token string) (string, error)
}

type Server struct {
	reg      *registry.Registry
	guard    *dedup.Guard
	sender   MessageSender
	status   StatusUpdater
	presence Presence
	peers    PeerLister
	tokens   TokenValidator
	rps      int
	log      *zap.SugaredLogger

	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

func NewServer(reg *registry.Registry, guard *dedup.Guard, sender MessageSender, status StatusUpdater, presence Presence, peers PeerLister, tokens TokenValidator, rps int, log *zap.SugaredLogger) *Server {
	return &Server{
		reg:      reg,
		guard:    guard,
		sender:   sender,
		status:   status,
		presence: presence,
		peers:    peers,
		tokens:   tokens,
		rps:      rps,
		log:      log,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Handler upgrades and runs one websocket connection.
func (s *Server) Handler() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			_ = conn.Close()
			return
		}
		uid, err := s.tokens.Validate(token)
		if err != nil {
			_ = conn.Close()
			return
		}
		c := newClient(conn, uid, uuid.NewString(), s, s.rps)
		first := s.reg.Register(uid, c.connID, c)
		s.log.Infow("ws connected", "user", uid, "conn", c.connID)
		if first {
			s.broadcastOnlineStatus(context.Background(), uid, true)
		}
		go c.writePump()
		c.readPump()
	}
}

// disconnect runs once per connection teardown. In-flight sends for
// this user finish on their own; only the dedup window is dropped.
func (s *Server) disconnect(c *Client) {
	last := s.reg.Unregister(c.uid, c.connID)
	s.guard.Clear(c.uid)
	s.leaveRooms(c)
	s.log.Infow("ws disconnected", "user", c.uid, "conn", c.connID)
	if last {
		s.broadcastOnlineStatus(context.Background(), c.uid, false)
	}
}

func (s *Server) broadcastOnlineStatus(ctx context.Context, userID string, online bool) {
	if err := s.presence.SetPresence(ctx, userID, online); err != nil {
		s.log.Warnw("set presence", "user", userID, "err", err)
	}
	peers, err := s.peers.PeersOf(ctx, userID)
	if err != nil {
		s.log.Warnw("list peers for online broadcast", "user", userID, "err", err)
		return
	}
	payload := map[string]interface{}{"user_id": userID, "online": online}
	for _, peer := range peers {
		s.reg.Emit(ctx, registry.User(peer), EventOnlineStatus, payload)
	}
}

// dispatch routes one inbound client event. The transport retransmits
// on reconnect, so token-carrying events pass the dedup guard first.
func (s *Server) dispatch(c *Client, env Envelope) {
	ctx := context.Background()
	if env.Token != "" && !s.guard.Admit(c.uid, env.Token) {
		metrics.DedupRejected.Inc()
		return
	}

	switch env.Event {
	case EventSendMessageDirect, EventSendMessageGroup:
		s.handleSendMessage(ctx, c, env)
	case EventMessageSeenDirect:
		s.handleMessageSeen(ctx, c, env)
	case EventTypingDirect:
		s.handleTyping(c, env)
	case EventJoinDirectRoom, EventJoinGroupRoom:
		s.handleJoinRoom(c, env)
	default:
		s.sendError(c, apperr.InvalidArg("unknown event "+env.Event))
	}
}

func (s *Server) handleSendMessage(ctx context.Context, c *Client, env Envelope) {
	var data sendMessageData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		s.sendError(c, apperr.InvalidArg("malformed send_message payload"))
		return
	}
	in := service.CreateMessageInput{
		SenderID:     c.uid,
		Plaintext:    []byte(data.Content),
		Type:         models.MessageType(data.Type),
		DirectChatID: data.DirectChatID,
		GroupChatID:  data.GroupChatID,
		RecipientID:  data.RecipientID,
		StickerID:    data.StickerID,
		MediaID:      data.MediaID,
		ReplyToSeq:   data.ReplyToID,
	}
	if env.Event == EventSendMessageDirect {
		in.GroupChatID = ""
	} else {
		in.DirectChatID = ""
	}
	if _, err := s.sender.Send(ctx, in); err != nil {
		s.sendError(c, err)
	}
}

func (s *Server) handleMessageSeen(ctx context.Context, c *Client, env Envelope) {
	var data messageSeenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		s.sendError(c, apperr.InvalidArg("malformed message_seen payload"))
		return
	}
	if _, err := s.status.UpdateStatus(ctx, data.MessageID, models.MessageStatusSeen); err != nil {
		s.sendError(c, err)
	}
}

// handleTyping relays to the room's subscribers only: typing is an
// ephemeral signal for clients currently viewing the conversation, and
// needs no membership lookup per keystroke.
func (s *Server) handleTyping(c *Client, env Envelope) {
	var data typingData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.DirectChatID == "" {
		s.sendError(c, apperr.InvalidArg("malformed typing payload"))
		return
	}
	s.emitRoom(models.ScopeKey(data.DirectChatID, ""), c, EventTypingDirect, map[string]interface{}{
		"direct_chat_id": data.DirectChatID,
		"user_id":        c.uid,
	})
}

func (s *Server) handleJoinRoom(c *Client, env Envelope) {
	var data joinRoomData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.ChatID == "" {
		s.sendError(c, apperr.InvalidArg("malformed join payload"))
		return
	}
	scope := models.ScopeKey(data.ChatID, "")
	if env.Event == EventJoinGroupRoom {
		scope = models.ScopeKey("", data.ChatID)
	}
	c.joinRoom(scope)
	s.mu.Lock()
	subs := s.rooms[scope]
	if subs == nil {
		subs = make(map[*Client]struct{})
		s.rooms[scope] = subs
	}
	subs[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) emitRoom(scope string, origin *Client, event string, payload interface{}) {
	s.mu.Lock()
	targets := make([]*Client, 0, len(s.rooms[scope]))
	for sub := range s.rooms[scope] {
		if sub != origin {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range targets {
		_ = sub.Send(event, payload)
	}
}

func (s *Server) leaveRooms(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scope := range c.roomList() {
		if subs := s.rooms[scope]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(s.rooms, scope)
			}
		}
	}
}

// sendError converts any error to the structured error event; internal
// causes are logged, never leaked to the client.
func (s *Server) sendError(c *Client, err error) {
	code := apperr.CodeOf(err)
	msg := "internal error"
	var ae *apperr.AppError
	if errors.As(err, &ae) && code != apperr.CodeInternal && code != apperr.CodeUnknown {
		msg = ae.Message
	} else {
		s.log.Errorw("ws event failed", "user", c.uid, "err", err)
	}
	_ = c.Send(EventError, ErrorPayload{
		Message:    msg,
		HTTPStatus: code.HTTPStatus(),
		IsError:    true,
	})
}
