package ws

import (
	"encoding/json"

	"campushub/internal/domain"
)

// Client-to-server event names.
const (
	evUserOnline        = "userOnline"
	evJoinRoom          = "joinRoom"
	evSendMessage       = "sendMessage"
	evTyping            = "typing"
	evMarkAsRead        = "markAsRead"
	evDeleteForMe       = "deleteForMe"
	evDeleteForEveryone = "deleteForEveryone"
)

// Server-to-client event names.
const (
	evUserStatusChange       = "userStatusChange"
	evOnlineUsers            = "onlineUsers"
	evReceiveMessage         = "receiveMessage"
	evNewMessageNotification = "newMessageNotification"
	evUserTyping             = "userTyping"
	evMessagesRead           = "messagesRead"
	evMessageDeleted         = "messageDeleted"
	evMessageError           = "messageError"
)

// clientEvents bounds the metrics label set to names we dispatch.
var clientEvents = map[string]struct{}{
	evUserOnline:        {},
	evJoinRoom:          {},
	evSendMessage:       {},
	evTyping:            {},
	evMarkAsRead:        {},
	evDeleteForMe:       {},
	evDeleteForEveryone: {},
}

// envelope is the inbound frame; Data is decoded per event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type userOnlinePayload struct {
	UserID string `json:"userId"`
}

type joinRoomPayload struct {
	ConversationKey string `json:"conversationKey"`
}

type sendMessagePayload struct {
	ConversationKey string              `json:"conversationKey"`
	SenderID        string              `json:"senderId"`
	RecipientID     string              `json:"recipientId"`
	Message         string              `json:"message"`
	Attachments     []domain.Attachment `json:"attachments,omitempty"`
}

type typingPayload struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
	IsTyping        bool   `json:"isTyping"`
}

type markAsReadPayload struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

func statusChangeEvent(userID string, online bool) Event {
	return Event{Event: evUserStatusChange, Data: map[string]any{
		"userId": userID,
		"online": online,
	}}
}

func errorEvent(msg string) Event {
	return Event{Event: evMessageError, Data: map[string]any{"message": msg}}
}
