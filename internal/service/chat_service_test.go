package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campushub/internal/domain"
	"campushub/internal/service"
	"campushub/internal/store/memory"
)

func newTestService(t *testing.T) (*service.ChatService, *memory.UserRepo) {
	t.Helper()
	users := memory.NewUserRepo()
	users.Seed(&domain.User{ID: "u1", Username: "alice"})
	users.Seed(&domain.User{ID: "u2", Username: "bob"})
	return service.NewChatService(memory.NewMessageRepo(), users, 100), users
}

func send(t *testing.T, svc *service.ChatService, from, to, body string) *domain.Message {
	t.Helper()
	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		SenderID:    from,
		RecipientID: to,
		Body:        body,
	})
	require.NoError(t, err)
	return msg
}

func TestSendMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("DerivesKey", func(t *testing.T) {
		msg := send(t, svc, "u1", "u2", "hello")
		assert.Equal(t, domain.ConversationKey("u1", "u2"), msg.ConversationKey)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	})

	t.Run("RejectsMismatchedKey", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, service.SendMessageInput{
			ConversationKey: "u1:u3",
			SenderID:        "u1",
			RecipientID:     "u2",
			Body:            "hi",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("RejectsMissingParticipants", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, service.SendMessageInput{SenderID: "u1", Body: "hi"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestReadFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := domain.ConversationKey("u1", "u2")

	send(t, svc, "u1", "u2", "hello")

	msgs, err := svc.History(ctx, key, "u2", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)

	unread, err := svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// sender's own badge is untouched
	unread, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	n, err := svc.MarkRead(ctx, key, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := domain.ConversationKey("u1", "u2")

	send(t, svc, "u1", "u2", "to bob")
	send(t, svc, "u2", "u1", "to alice")

	_, err := svc.MarkRead(ctx, key, "u2")
	require.NoError(t, err)

	// bob's read does not touch the message addressed to alice
	unread, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestHistoryCap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := domain.ConversationKey("u1", "u2")

	for i := 1; i <= 101; i++ {
		send(t, svc, "u1", "u2", fmt.Sprintf("msg-%d", i))
	}

	msgs, err := svc.History(ctx, key, "u2", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 100)

	// the oldest message fell off; order is ascending
	assert.Equal(t, "msg-2", msgs[0].Body)
	assert.Equal(t, "msg-101", msgs[99].Body)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestDeleteForMe(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := domain.ConversationKey("u1", "u2")

	msg := send(t, svc, "u1", "u2", "secret")

	require.NoError(t, svc.DeleteForMe(ctx, msg.ID, "u2"))

	// hidden from u2...
	msgs, err := svc.History(ctx, key, "u2", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// ...but u1 still sees it
	msgs, err = svc.History(ctx, key, "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "secret", msgs[0].Body)
}

func TestDeleteForMeRequiresParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	msg := send(t, svc, "u1", "u2", "hi")

	err := svc.DeleteForMe(context.Background(), msg.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteForEveryone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := domain.ConversationKey("u1", "u2")

	msg := send(t, svc, "u1", "u2", "regret")

	t.Run("NonSenderRejected", func(t *testing.T) {
		_, err := svc.DeleteForEveryone(ctx, msg.ID, "u2")
		assert.ErrorIs(t, err, domain.ErrForbidden)

		// no mutation happened
		msgs, err := svc.History(ctx, key, "u2", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "regret", msgs[0].Body)
	})

	t.Run("SenderTombstones", func(t *testing.T) {
		deleted, err := svc.DeleteForEveryone(ctx, msg.ID, "u1")
		require.NoError(t, err)
		assert.True(t, deleted.DeletedForEveryone)
		assert.Equal(t, service.Tombstone, deleted.Body)

		// both participants see the tombstone
		for _, viewer := range []string{"u1", "u2"} {
			msgs, err := svc.History(ctx, key, viewer, 0)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, service.Tombstone, msgs[0].Body)
			assert.Empty(t, msgs[0].Attachments)
		}
	})

	t.Run("MissingMessage", func(t *testing.T) {
		_, err := svc.DeleteForEveryone(ctx, "does-not-exist", "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRecentConversations(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	users.Seed(&domain.User{ID: "u3", Username: "carol"})

	send(t, svc, "u2", "u1", "first")
	send(t, svc, "u2", "u1", "second")
	send(t, svc, "u3", "u1", "from carol")

	summaries, err := svc.RecentConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// newest conversation first
	assert.Equal(t, "from carol", summaries[0].LastMessage.Body)
	assert.Equal(t, "carol", summaries[0].OtherUser.Username)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)

	assert.Equal(t, "second", summaries[1].LastMessage.Body)
	assert.Equal(t, "bob", summaries[1].OtherUser.Username)
	assert.Equal(t, int64(2), summaries[1].UnreadCount)
}

func TestRecentConversationsSkipsDanglingUsers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	send(t, svc, "ghost", "u1", "boo")
	send(t, svc, "u2", "u1", "hi")

	summaries, err := svc.RecentConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "bob", summaries[0].OtherUser.Username)
}

func TestToResponseExpandsUsernames(t *testing.T) {
	svc, _ := newTestService(t)
	msg := send(t, svc, "u1", "u2", "hello")

	resp := svc.ToResponse(context.Background(), msg)
	assert.Equal(t, "alice", resp.SenderUsername)
	assert.Equal(t, "bob", resp.RecipientUsername)
	assert.Equal(t, "hello", resp.Body)
}
