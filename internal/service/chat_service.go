package service

import (
	"context"
	"fmt"
	"time"

	"campushub/internal/domain"
)

// Tombstone replaces the body of a message deleted for everyone.
const Tombstone = "This message was deleted"

// DefaultHistoryLimit caps a single history fetch.
const DefaultHistoryLimit = 100

const maxBodyRunes = 5000

// ChatService owns the persistence-facing chat operations shared by the
// realtime gateway and the REST surface.
type ChatService struct {
	messages domain.MessageRepository
	users    domain.UserRepository

	HistoryLimit int
}

func NewChatService(messages domain.MessageRepository, users domain.UserRepository, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatService{
		messages:     messages,
		users:        users,
		HistoryLimit: historyLimit,
	}
}

type SendMessageInput struct {
	ConversationKey string
	SenderID        string
	RecipientID     string
	Body            string
	Attachments     []domain.Attachment
}

// SendMessage persists a new message. Persistence must succeed before
// any broadcast happens; callers broadcast only on a nil error.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*domain.Message, error) {
	if in.SenderID == "" || in.RecipientID == "" {
		return nil, fmt.Errorf("%w: sender and recipient are required", domain.ErrInvalidInput)
	}
	if len([]rune(in.Body)) > maxBodyRunes {
		return nil, fmt.Errorf("%w: message body exceeds %d characters", domain.ErrInvalidInput, maxBodyRunes)
	}

	// The key is derived, never trusted from the client.
	key := domain.ConversationKey(in.SenderID, in.RecipientID)
	if in.ConversationKey != "" && in.ConversationKey != key {
		return nil, fmt.Errorf("%w: conversation key does not match participants", domain.ErrInvalidInput)
	}

	msg := &domain.Message{
		ConversationKey: key,
		SenderID:        in.SenderID,
		RecipientID:     in.RecipientID,
		Body:            in.Body,
		Attachments:     in.Attachments,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages of a conversation in ascending
// chronological order, hiding messages the viewer deleted for themselves.
func (s *ChatService) History(ctx context.Context, conversationKey, viewerID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationKey, limit)
	if err != nil {
		return nil, err
	}

	// repo returns newest first; flip to chronological
	res := make([]*domain.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HiddenFrom(viewerID) {
			continue
		}
		res = append(res, msgs[i])
	}
	return res, nil
}

// MarkRead flags every unread message in the conversation addressed to
// userID as read and reports how many messages changed.
func (s *ChatService) MarkRead(ctx context.Context, conversationKey, userID string) (int64, error) {
	return s.messages.MarkAllRead(ctx, conversationKey, userID)
}

// UnreadCount returns the user's global unread badge count.
func (s *ChatService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.messages.CountUnread(ctx, userID)
}

// RecentConversations builds the requesting user's conversation list:
// one entry per conversation key, newest first, with the other
// participant resolved and a per-conversation unread count. Entries whose
// other participant no longer exists are skipped.
func (s *ChatService) RecentConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	latest, err := s.messages.LatestPerConversation(ctx, userID)
	if err != nil {
		return nil, err
	}

	otherIDs := make([]string, 0, len(latest))
	for _, m := range latest {
		otherIDs = append(otherIDs, m.OtherParticipant(userID))
	}
	users, err := s.users.GetByIDs(ctx, otherIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}

	res := make([]*domain.ConversationSummary, 0, len(latest))
	for _, m := range latest {
		other, ok := users[m.OtherParticipant(userID)]
		if !ok {
			// dangling reference, e.g. a deactivated account
			continue
		}
		unread, err := s.messages.CountUnreadInConversation(ctx, m.ConversationKey, userID)
		if err != nil {
			return nil, err
		}
		res = append(res, &domain.ConversationSummary{
			ConversationKey: m.ConversationKey,
			LastMessage:     m,
			OtherUser:       other,
			UnreadCount:     unread,
		})
	}
	return res, nil
}

// DeleteForMe hides a message from the requester's own view only.
func (s *ChatService) DeleteForMe(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.Involves(requesterID) {
		return domain.ErrForbidden
	}
	return s.messages.AddDeletedFor(ctx, messageID, requesterID)
}

// DeleteForEveryone tombstones a message. Only the sender may do this;
// a rejected request mutates nothing.
func (s *ChatService) DeleteForEveryone(ctx context.Context, messageID, requesterID string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, domain.ErrForbidden
	}
	if err := s.messages.MarkDeletedForEveryone(ctx, messageID, Tombstone); err != nil {
		return nil, err
	}
	msg.DeletedForEveryone = true
	msg.Body = Tombstone
	msg.Attachments = nil
	return msg, nil
}

// MessageResponse is the wire shape of a message, sender and recipient
// expanded to display-friendly form.
type MessageResponse struct {
	ID                string              `json:"id"`
	ConversationKey   string              `json:"conversationKey"`
	SenderID          string              `json:"senderId"`
	SenderUsername    string              `json:"senderUsername,omitempty"`
	RecipientID       string              `json:"recipientId"`
	RecipientUsername string              `json:"recipientUsername,omitempty"`
	Body              string              `json:"message"`
	Attachments       []domain.Attachment `json:"attachments,omitempty"`
	Read              bool                `json:"read"`
	Deleted           bool                `json:"deleted"`
	CreatedAt         time.Time           `json:"createdAt"`
}

// ToResponse converts a message into its wire shape. Username lookups
// are best-effort; an unresolvable participant leaves the field empty.
func (s *ChatService) ToResponse(ctx context.Context, m *domain.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Body:            m.Body,
		Attachments:     m.Attachments,
		Read:            m.Read,
		Deleted:         m.DeletedForEveryone,
		CreatedAt:       m.CreatedAt,
	}
	if users, err := s.users.GetByIDs(ctx, []string{m.SenderID, m.RecipientID}); err == nil {
		if u, ok := users[m.SenderID]; ok {
			resp.SenderUsername = u.Username
		}
		if u, ok := users[m.RecipientID]; ok {
			resp.RecipientUsername = u.Username
		}
	}
	return resp
}

// ToResponses converts a slice of messages into wire shapes.
func (s *ChatService) ToResponses(ctx context.Context, msgs []*domain.Message) []*MessageResponse {
	res := make([]*MessageResponse, len(msgs))
	for i, m := range msgs {
		res[i] = s.ToResponse(ctx, m)
	}
	return res
}
