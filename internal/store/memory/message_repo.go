// Package memory holds in-memory implementations of the domain
// repositories. They back the test suites and allow running the server
// without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"campushub/internal/domain"
)

type MessageRepo struct {
	mu       sync.RWMutex
	messages []*domain.Message
	byID     map[string]*domain.Message
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{byID: make(map[string]*domain.Message)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func clone(m *domain.Message) *domain.Message {
	c := *m
	c.Attachments = append([]domain.Attachment(nil), m.Attachments...)
	c.DeletedFor = append([]string(nil), m.DeletedFor...)
	return &c
}

func (r *MessageRepo) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	stored := clone(m)
	r.messages = append(r.messages, stored)
	r.byID[stored.ID] = stored
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(m), nil
}

func (r *MessageRepo) ListForConversation(_ context.Context, conversationKey string, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// newest first; insertion order breaks timestamp ties
	var res []*domain.Message
	for i := len(r.messages) - 1; i >= 0 && len(res) < limit; i-- {
		if r.messages[i].ConversationKey == conversationKey {
			res = append(res, clone(r.messages[i]))
		}
	}
	return res, nil
}

func (r *MessageRepo) MarkAllRead(_ context.Context, conversationKey, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.messages {
		if m.ConversationKey == conversationKey && m.RecipientID == recipientID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) CountUnread(_ context.Context, recipientID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, m := range r.messages {
		if m.RecipientID == recipientID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) CountUnreadInConversation(_ context.Context, conversationKey, recipientID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, m := range r.messages {
		if m.ConversationKey == conversationKey && m.RecipientID == recipientID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) LatestPerConversation(_ context.Context, userID string) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// walk newest to oldest, keeping the first hit per conversation;
	// insertion order breaks timestamp ties
	seen := make(map[string]struct{})
	var res []*domain.Message
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if !m.Involves(userID) {
			continue
		}
		if _, ok := seen[m.ConversationKey]; ok {
			continue
		}
		seen[m.ConversationKey] = struct{}{}
		res = append(res, clone(m))
	}
	return res, nil
}

func (r *MessageRepo) AddDeletedFor(_ context.Context, messageID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	if !m.HiddenFrom(userID) {
		m.DeletedFor = append(m.DeletedFor, userID)
	}
	return nil
}

func (r *MessageRepo) MarkDeletedForEveryone(_ context.Context, messageID, tombstone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	m.DeletedForEveryone = true
	m.Body = tombstone
	m.Attachments = nil
	return nil
}
