package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/push"
	"github.com/vanchien08/thunderchat/internal/repository"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/pkg/apperr"
)

type MessageSender interface {
	Send(ctx context.Context, in service.CreateMessageInput) (*models.Message, error)
}

type MessagePager interface {
	GetNewer(ctx context.Context, directChatID, groupChatID string, cursor, limit int64) ([]*models.Message, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, seq int64, status models.MessageStatus) (*models.Message, error)
	TogglePin(ctx context.Context, directChatID, groupChatID string, messageSeq int64, actorID string) (bool, error)
	ActivePins(ctx context.Context, directChatID, groupChatID string) ([]*models.PinnedMessage, error)
}

type MemberFinder interface {
	FindMember(ctx context.Context, groupID, userID string) (*models.GroupChatMember, error)
}

type PushSender interface {
	SendToUser(ctx context.Context, userID string, payload push.Payload) (*push.Result, error)
}

type EndpointAdmin interface {
	Register(ctx context.Context, userID, url, auth string) (*models.PushEndpoint, error)
	Remove(ctx context.Context, id string) error
}

type Indexer interface {
	IndexMessage(m *models.Message)
	IndexUser(u *models.User)
}

type Handler struct {
	sender    MessageSender
	pager     MessagePager
	status    StatusUpdater
	members   MemberFinder
	push      PushSender
	endpoints EndpointAdmin
	indexer   Indexer
	log       *zap.SugaredLogger
}

func NewHandler(sender MessageSender, pager MessagePager, status StatusUpdater, members MemberFinder, push PushSender, endpoints EndpointAdmin, indexer Indexer, log *zap.SugaredLogger) *Handler {
	return &Handler{
		sender:    sender,
		pager:     pager,
		status:    status,
		members:   members,
		push:      push,
		endpoints: endpoints,
		indexer:   indexer,
		log:       log,
	}
}

type createMessageReq struct {
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	DirectChatID string    `json:"direct_chat_id,omitempty"`
	GroupChatID  string    `json:"group_chat_id,omitempty"`
	RecipientID  string    `json:"recipient_id,omitempty"`
	StickerID    string    `json:"sticker_id,omitempty"`
	MediaID      string    `json:"media_id,omitempty"`
	ReplyToID    int64     `json:"reply_to_id,omitempty"`
}

func (h *Handler) CreateMessage(c *fiber.Ctx) error {
	var req createMessageReq
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	m, err := h.sender.Send(c.Context(), service.CreateMessageInput{
		SenderID:     req.AuthorID,
		Plaintext:    []byte(req.Content),
		Type:         models.MessageType(req.Type),
		DirectChatID: req.DirectChatID,
		GroupChatID:  req.GroupChatID,
		RecipientID:  req.RecipientID,
		StickerID:    req.StickerID,
		MediaID:      req.MediaID,
		ReplyToSeq:   req.ReplyToID,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateMessageStatus(c *fiber.Ctx) error {
	seq, err := c.ParamsInt("id")
	if err != nil {
		return errorJSON(c, apperr.InvalidArg("message id must be numeric"))
	}
	var req updateStatusReq
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	m, err := h.status.UpdateStatus(c.Context(), int64(seq), models.MessageStatus(req.Status))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(m)
}

func (h *Handler) GetNewerMessages(c *fiber.Ctx) error {
	cursor := int64(c.QueryInt("cursor", 0))
	limit := int64(c.QueryInt("limit", 50))
	msgs, err := h.pager.GetNewer(c.Context(), c.Query("direct_chat_id"), c.Query("group_chat_id"), cursor, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(msgs)
}

func (h *Handler) FindMemberInGroupChat(c *fiber.Ctx) error {
	member, err := h.members.FindMember(c.Context(), c.Params("id"), c.Params("uid"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorJSON(c, apperr.NotFound("group chat not found"))
		}
		return errorJSON(c, err)
	}
	if member == nil {
		// absent membership is a null result, not an error
		return c.JSON(nil)
	}
	return c.JSON(member)
}

type togglePinReq struct {
	ActorID      string `json:"actor_id"`
	MessageID    int64  `json:"message_id"`
	DirectChatID string `json:"direct_chat_id,omitempty"`
	GroupChatID  string `json:"group_chat_id,omitempty"`
}

func (h *Handler) TogglePin(c *fiber.Ctx) error {
	var req togglePinReq
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	pinned, err := h.status.TogglePin(c.Context(), req.DirectChatID, req.GroupChatID, req.MessageID, req.ActorID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"is_pinned": pinned})
}

func (h *Handler) ListPins(c *fiber.Ctx) error {
	pins, err := h.status.ActivePins(c.Context(), c.Query("direct_chat_id"), c.Query("group_chat_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(pins)
}

func (h *Handler) SendNotificationToUser(c *fiber.Ctx) error {
	var payload push.Payload
	if err := c.BodyParser(&payload); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	res, err := h.push.SendToUser(c.Context(), c.Params("id"), payload)
	if err != nil {
		return errorJSON(c, err)
	}
	if c.QueryBool("prune") {
		for _, ep := range res.Failure {
			if err := h.endpoints.Remove(c.Context(), ep.ID); err != nil {
				h.log.Warnw("prune endpoint", "endpoint", ep.ID, "err", err)
			}
		}
	}
	return c.JSON(res)
}

type registerEndpointReq struct {
	UserID string `json:"user_id"`
	URL    string `json:"url"`
	Auth   string `json:"auth,omitempty"`
}

func (h *Handler) RegisterPushEndpoint(c *fiber.Ctx) error {
	var req registerEndpointReq
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	if req.UserID == "" || req.URL == "" {
		return errorJSON(c, apperr.InvalidArg("user_id and url are required"))
	}
	ep, err := h.endpoints.Register(c.Context(), req.UserID, req.URL, req.Auth)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ep)
}

type syncIndexReq struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// SyncDataToIndex accepts the entity and returns immediately; the relay
// owns retries and failure isolation.
func (h *Handler) SyncDataToIndex(c *fiber.Ctx) error {
	var req syncIndexReq
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.InvalidArg("malformed request body"))
	}
	switch req.Kind {
	case "message":
		var m models.Message
		if err := json.Unmarshal(req.Data, &m); err != nil {
			return errorJSON(c, apperr.InvalidArg("malformed message entity"))
		}
		h.indexer.IndexMessage(&m)
	case "user":
		var u models.User
		if err := json.Unmarshal(req.Data, &u); err != nil {
			return errorJSON(c, apperr.InvalidArg("malformed user entity"))
		}
		h.indexer.IndexUser(&u)
	default:
		return errorJSON(c, apperr.InvalidArg("unknown entity kind"))
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func errorJSON(c *fiber.Ctx, err error) error {
	code := apperr.CodeOf(err)
	msg := "internal error"
	var ae *apperr.AppError
	if errors.As(err, &ae) && code != apperr.CodeInternal && code != apperr.CodeUnknown {
		msg = ae.Message
	}
	return c.Status(code.HTTPStatus()).JSON(fiber.Map{
		"code":    code,
		"message": msg,
		"isError": true,
	})
}
