package domain

import "context"

// UserRepository defines the read-only lookups chat needs against the
// users collection.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByIDs returns the found users keyed by ID; missing IDs are
	// simply absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*User, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForConversation returns up to limit messages, newest first.
	ListForConversation(ctx context.Context, conversationKey string, limit int) ([]*Message, error)
	// MarkAllRead flags every unread message addressed to recipientID in
	// the conversation and reports how many were updated.
	MarkAllRead(ctx context.Context, conversationKey, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	CountUnreadInConversation(ctx context.Context, conversationKey, recipientID string) (int64, error)
	// LatestPerConversation returns the most recent message of every
	// conversation touching userID, newest conversation first.
	LatestPerConversation(ctx context.Context, userID string) ([]*Message, error)
	AddDeletedFor(ctx context.Context, messageID, userID string) error
	// MarkDeletedForEveryone replaces the body with the tombstone text
	// and clears attachments. Irreversible.
	MarkDeletedForEveryone(ctx context.Context, messageID, tombstone string) error
}
