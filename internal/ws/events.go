package ws

import "encoding/json"

// Inbound event names.
const (
	EventSendMessageDirect = "send_message:direct"
	EventSendMessageGroup  = "send_message:group"
	EventMessageSeenDirect = "message_seen:direct"
	EventTypingDirect      = "typing:direct"
	EventJoinDirectRoom    = "join_direct_room"
	EventJoinGroupRoom     = "join_group_room"

	// Outbound-only event names.
	EventError        = "error"
	EventOnlineStatus = "broadcast_user_online_status"
)

// Envelope is the wire format for inbound client events. Token is the
// one-time dedup token guarding retransmits.
type Envelope struct {
	Event string          `json:"event"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound frames wrap {event, data}
type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorPayload is sent back on the same channel for rejected events.
type ErrorPayload struct {
	Message    string `json:"message"`
	HTTPStatus int    `json:"httpStatus"`
	IsError    bool   `json:"isError"`
}

type sendMessageData struct {
	DirectChatID string `json:"direct_chat_id,omitempty"`
	GroupChatID  string `json:"group_chat_id,omitempty"`
	RecipientID  string `json:"recipient_id,omitempty"`
	Content      string `json:"content"`
	Type         string `json:"type"`
	StickerID    string `json:"sticker_id,omitempty"`
	MediaID      string `json:"media_id,omitempty"`
	ReplyToID    int64  `json:"reply_to_id,omitempty"`
}

type messageSeenData struct {
	MessageID int64 `json:"message_id"`
}

type typingData struct {
	DirectChatID string `json:"direct_chat_id"`
}

type joinRoomData struct {
	ChatID string `json:"chat_id"`
}
