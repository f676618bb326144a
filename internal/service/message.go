package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/perm"
	"github.com/vanchien08/thunderchat/pkg/apperr"
)

// Interfaces over the storage layer so tests run against fakes.

type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	GetBySeq(ctx context.Context, seq int64) (*models.Message, error)
	GetNewer(ctx context.Context, directChatID, groupChatID string, cursor, limit int64) ([]*models.Message, error)
	SetStatus(ctx context.Context, seq int64, status models.MessageStatus) (*models.Message, error)
}

type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

type DirectChatStore interface {
	GetByID(ctx context.Context, id string) (*models.DirectChat, error)
}

type GroupChatStore interface {
	GetByID(ctx context.Context, id string) (*models.GroupChat, error)
}

type Lookup interface {
	User(ctx context.Context, id string) (*models.User, error)
	Sticker(ctx context.Context, id string) (*models.Sticker, error)
	Media(ctx context.Context, id string) (*models.Media, error)
}

type Encryptor interface {
	Encrypt(plaintext []byte) (ciphertext []byte, version int, err error)
}

// messageSeqCounter names the shared message sequence; identifiers are
// monotonic across all scopes and serve as pagination cursors.
const messageSeqCounter = "messages"

type CreateMessageInput struct {
	SenderID     string
	Plaintext    []byte
	Type         models.MessageType
	DirectChatID string
	GroupChatID  string
	RecipientID  string
	StickerID    string
	MediaID      string
	ReplyToSeq   int64
	Timestamp    time.Time
}

// MessageService is the authoring and encryption unit: it validates the
// sender against the target scope, encrypts content under the active
// key version and persists the row with a fresh sequence id.
type MessageService struct {
	messages MessageStore
	seqs     Sequencer
	directs  DirectChatStore
	groups   GroupChatStore
	lookup   Lookup
	enc      Encryptor
	log      *zap.SugaredLogger
}

func NewMessageService(messages MessageStore, seqs Sequencer, directs DirectChatStore, groups GroupChatStore, lookup Lookup, enc Encryptor, log *zap.SugaredLogger) *MessageService {
	return &MessageService{
		messages: messages,
		seqs:     seqs,
		directs:  directs,
		groups:   groups,
		lookup:   lookup,
		enc:      enc,
		log:      log,
	}
}

func (s *MessageService) CreateMessage(ctx context.Context, in CreateMessageInput) (*models.Message, error) {
	if (in.DirectChatID == "") == (in.GroupChatID == "") {
		return nil, apperr.InvalidArg("exactly one of direct_chat_id and group_chat_id must be set")
	}
	if in.SenderID == "" {
		return nil, apperr.InvalidArg("sender_id is required")
	}

	if in.DirectChatID != "" {
		chat, err := s.directs.GetByID(ctx, in.DirectChatID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeNotFound, "direct chat not found", err)
		}
		if !chat.HasMember(in.SenderID) {
			return nil, apperr.Forbidden("sender is not a participant of this chat")
		}
	} else {
		group, err := s.groups.GetByID(ctx, in.GroupChatID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeNotFound, "group chat not found", err)
		}
		member := group.Member(in.SenderID)
		if member == nil {
			return nil, apperr.Forbidden("sender is not a member of this group")
		}
		if !perm.Allows(member.Role, perm.SendMessage) {
			return nil, apperr.Forbidden("role may not send messages in this group")
		}
	}

	ciphertext, version, err := s.enc.Encrypt(in.Plaintext)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "encrypt message", err)
	}

	seq, err := s.seqs.Next(ctx, messageSeqCounter)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "allocate message id", err)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m := &models.Message{
		Seq:          seq,
		SenderID:     in.SenderID,
		Content:      ciphertext,
		KeyVersion:   version,
		Type:         in.Type,
		Status:       models.MessageStatusSent,
		DirectChatID: in.DirectChatID,
		GroupChatID:  in.GroupChatID,
		RecipientID:  in.RecipientID,
		ReplyToSeq:   in.ReplyToSeq,
		StickerID:    in.StickerID,
		MediaID:      in.MediaID,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "persist message", err)
	}
	metrics.MessagesCreated.Inc()

	s.hydrate(ctx, m, true)
	return m, nil
}

// GetNewer pages messages of one scope newer than cursor, ascending.
func (s *MessageService) GetNewer(ctx context.Context, directChatID, groupChatID string, cursor, limit int64) ([]*models.Message, error) {
	if (directChatID == "") == (groupChatID == "") {
		return nil, apperr.InvalidArg("exactly one of direct_chat_id and group_chat_id must be set")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := s.messages.GetNewer(ctx, directChatID, groupChatID, cursor, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "load messages", err)
	}
	for _, m := range msgs {
		s.hydrate(ctx, m, true)
	}
	return msgs, nil
}

// hydrate attaches author, sticker, media and (depth 1) the reply
// target. Missing references are skipped, never fatal.
func (s *MessageService) hydrate(ctx context.Context, m *models.Message, withReply bool) {
	if u, err := s.lookup.User(ctx, m.SenderID); err == nil {
		m.Sender = u
	} else {
		s.log.Debugw("hydrate sender", "seq", m.Seq, "err", err)
	}
	if m.StickerID != "" {
		if st, err := s.lookup.Sticker(ctx, m.StickerID); err == nil {
			m.Sticker = st
		}
	}
	if m.MediaID != "" {
		if md, err := s.lookup.Media(ctx, m.MediaID); err == nil {
			m.Media = md
		}
	}
	if withReply && m.ReplyToSeq != 0 {
		if parent, err := s.messages.GetBySeq(ctx, m.ReplyToSeq); err == nil {
			s.hydrate(ctx, parent, false)
			m.ReplyTo = parent
		}
	}
}
