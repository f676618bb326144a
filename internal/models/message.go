package models

import "time"

type MessageType string

const (
	MessageTypeText    MessageType = "TEXT"
	MessageTypeSticker MessageType = "STICKER"
	MessageTypeMedia   MessageType = "MEDIA"
	MessageTypePin     MessageType = "PIN_NOTICE"
)

type MessageStatus string

const (
	MessageStatusSent MessageStatus = "SENT"
	MessageStatusSeen MessageStatus = "SEEN"
)

// Message is an encrypted chat message. Seq is assigned by the sequence
// allocator at creation time and doubles as the pagination cursor.
// Exactly one of DirectChatID / GroupChatID is set.
type Message struct {
	Seq           int64         `bson:"_id" json:"id"`
	SenderID      string        `bson:"sender_id" json:"sender_id"`
	Content       []byte        `bson:"content" json:"content"` // nonce||ciphertext, never plaintext
	KeyVersion    int           `bson:"key_version" json:"key_version"`
	Type          MessageType   `bson:"type" json:"type"`
	Status        MessageStatus `bson:"status" json:"status"`
	DirectChatID  string        `bson:"direct_chat_id,omitempty" json:"direct_chat_id,omitempty"`
	GroupChatID   string        `bson:"group_chat_id,omitempty" json:"group_chat_id,omitempty"`
	RecipientID   string        `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	ReplyToSeq    int64         `bson:"reply_to_seq,omitempty" json:"reply_to_seq,omitempty"`
	StickerID     string        `bson:"sticker_id,omitempty" json:"sticker_id,omitempty"`
	MediaID       string        `bson:"media_id,omitempty" json:"media_id,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updated_at"`

	// Hydrated on read, not persisted.
	Sender  *User    `bson:"-" json:"sender,omitempty"`
	ReplyTo *Message `bson:"-" json:"reply_to,omitempty"`
	Sticker *Sticker `bson:"-" json:"sticker,omitempty"`
	Media   *Media   `bson:"-" json:"media,omitempty"`
}

// ScopeKey derives the conversation scope key from a chat id pair;
// exactly one of the ids is set. Pin records, ws rooms and the
// per-scope serializer all key on it.
func ScopeKey(directChatID, groupChatID string) string {
	if directChatID != "" {
		return "direct:" + directChatID
	}
	return "group:" + groupChatID
}

// ScopeID returns the conversation scope key of the message.
func (m *Message) ScopeID() string {
	return ScopeKey(m.DirectChatID, m.GroupChatID)
}

type Sticker struct {
	ID  string `bson:"_id" json:"id"`
	URL string `bson:"url" json:"url"`
}

type Media struct {
	ID       string `bson:"_id" json:"id"`
	URL      string `bson:"url" json:"url"`
	MimeType string `bson:"mime_type" json:"mime_type"`
}
