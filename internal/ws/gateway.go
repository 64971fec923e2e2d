package ws

import (
	"context"
	"errors"
	"log"

	"campushub/internal/domain"
	"campushub/internal/metrics"
	"campushub/internal/service"
)

// Gateway implements the realtime protocol on top of the hub and the
// chat service. Each method handles one client event; no failure inside
// a handler may escape to the read loop.
type Gateway struct {
	hub  *Hub
	chat *service.ChatService
}

func NewGateway(hub *Hub, chat *service.ChatService) *Gateway {
	return &Gateway{hub: hub, chat: chat}
}

// Hub exposes the presence registry, e.g. for REST handlers that fan
// out events after an HTTP-initiated mutation.
func (g *Gateway) Hub() *Hub { return g.hub }

// Identify transitions a connection from anonymous to identified:
// presence is recorded, the online transition is broadcast to everyone,
// and the new client receives a presence snapshot.
func (g *Gateway) Identify(userID string, conn Conn) *Client {
	c := g.hub.MarkOnline(userID, conn)
	g.hub.BroadcastAll(statusChangeEvent(userID, true))
	_ = c.Send(Event{Event: evOnlineUsers, Data: map[string]any{
		"userIds": g.hub.OnlineUserIDs(),
	}})
	return c
}

// Disconnect tears the connection down from any state: rooms are left
// and, if this was still the user's active connection, the offline
// transition is broadcast.
func (g *Gateway) Disconnect(c *Client) {
	g.hub.LeaveAllRooms(c)
	if g.hub.MarkOffline(c) {
		g.hub.BroadcastAll(statusChangeEvent(c.userID, false))
	}
}

// JoinRoom subscribes the connection to a conversation room.
func (g *Gateway) JoinRoom(c *Client, p joinRoomPayload) {
	if p.ConversationKey == "" {
		return
	}
	g.hub.JoinRoom(p.ConversationKey, c)
}

// SendMessage persists the message and, only after persistence
// succeeded, broadcasts it to the room and pushes a notification to the
// recipient's personal connection. A persistence failure is reported to
// the sending connection alone.
func (g *Gateway) SendMessage(ctx context.Context, c *Client, p sendMessagePayload) {
	if p.SenderID != c.userID {
		_ = c.Send(errorEvent("sender does not match connection identity"))
		return
	}

	msg, err := g.chat.SendMessage(ctx, service.SendMessageInput{
		ConversationKey: p.ConversationKey,
		SenderID:        p.SenderID,
		RecipientID:     p.RecipientID,
		Body:            p.Message,
		Attachments:     p.Attachments,
	})
	if err != nil {
		log.Printf("ws: send message: %v", err)
		metrics.SendFailures.Inc()
		_ = c.Send(errorEvent("failed to send message"))
		return
	}
	metrics.MessagesSent.Inc()

	resp := g.chat.ToResponse(ctx, msg)
	g.hub.BroadcastRoom(msg.ConversationKey, nil, Event{Event: evReceiveMessage, Data: resp})

	// Direct push so UIs outside the open thread can badge/toast.
	// Recipient offline is not an error, the push is simply skipped.
	g.hub.SendToUser(p.RecipientID, Event{Event: evNewMessageNotification, Data: map[string]any{
		"conversationKey": msg.ConversationKey,
		"senderId":        msg.SenderID,
		"message":         msg.Body,
	}})
}

// Typing relays an ephemeral typing indicator to the room, excluding
// the sender. Nothing is persisted.
func (g *Gateway) Typing(c *Client, p typingPayload) {
	if p.ConversationKey == "" {
		return
	}
	g.hub.BroadcastRoom(p.ConversationKey, c, Event{Event: evUserTyping, Data: map[string]any{
		"userId":   c.userID,
		"isTyping": p.IsTyping,
	}})
}

// MarkRead bulk-flags the conversation's unread messages addressed to
// this user, then broadcasts the read receipt to the whole room, the
// caller included, so every client can reconcile.
func (g *Gateway) MarkRead(ctx context.Context, c *Client, p markAsReadPayload) {
	if p.ConversationKey == "" {
		return
	}
	if _, err := g.chat.MarkRead(ctx, p.ConversationKey, c.userID); err != nil {
		log.Printf("ws: mark read: %v", err)
		_ = c.Send(errorEvent("failed to mark messages as read"))
		return
	}
	g.hub.BroadcastRoom(p.ConversationKey, nil, Event{Event: evMessagesRead, Data: map[string]any{
		"conversationKey": p.ConversationKey,
		"userId":          c.userID,
	}})
}

// DeleteForMe hides the message from this user only. Deliberately no
// broadcast; the other participant keeps seeing the message.
func (g *Gateway) DeleteForMe(ctx context.Context, c *Client, p deleteMessagePayload) {
	if err := g.chat.DeleteForMe(ctx, p.MessageID, c.userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		log.Printf("ws: delete for me: %v", err)
		_ = c.Send(errorEvent("failed to delete message"))
	}
}

// DeleteForEveryone tombstones the message (sender only) and notifies
// the room so joined clients update their view.
func (g *Gateway) DeleteForEveryone(ctx context.Context, c *Client, p deleteMessagePayload) {
	msg, err := g.chat.DeleteForEveryone(ctx, p.MessageID, c.userID)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			_ = c.Send(errorEvent("only the sender can delete a message for everyone"))
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		log.Printf("ws: delete for everyone: %v", err)
		_ = c.Send(errorEvent("failed to delete message"))
		return
	}
	g.BroadcastMessageDeleted(msg.ConversationKey, msg.ID)
}

// BroadcastMessageDeleted fans the deletion event to the room. Shared
// with the REST delete handler so HTTP-initiated deletes stay
// live-consistent.
func (g *Gateway) BroadcastMessageDeleted(conversationKey, messageID string) {
	g.hub.BroadcastRoom(conversationKey, nil, Event{Event: evMessageDeleted, Data: map[string]any{
		"conversationKey": conversationKey,
		"messageId":       messageID,
	}})
}
