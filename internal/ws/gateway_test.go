package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campushub/internal/domain"
	"campushub/internal/service"
	"campushub/internal/store/memory"
)

func newTestGateway(t *testing.T) (*Gateway, *memory.MessageRepo) {
	t.Helper()
	users := memory.NewUserRepo()
	users.Seed(&domain.User{ID: "u1", Username: "alice"})
	users.Seed(&domain.User{ID: "u2", Username: "bob"})
	messages := memory.NewMessageRepo()
	return NewGateway(NewHub(), service.NewChatService(messages, users, 100)), messages
}

// failingMessages rejects every insert.
type failingMessages struct {
	domain.MessageRepository
}

func (failingMessages) Create(context.Context, *domain.Message) error {
	return errors.New("database unreachable")
}

func TestIdentifyAndDisconnect(t *testing.T) {
	gw, _ := newTestGateway(t)

	f1 := &fakeConn{}
	c1 := gw.Identify("u1", f1)

	// new client gets the presence snapshot and its own online broadcast
	require.Len(t, f1.received("onlineUsers"), 1)
	require.Len(t, f1.received("userStatusChange"), 1)

	f2 := &fakeConn{}
	c2 := gw.Identify("u2", f2)

	// exactly one status event per transition, not per unrelated event
	assert.Len(t, f1.received("userStatusChange"), 2)
	assert.Len(t, f2.received("userStatusChange"), 1)

	gw.Disconnect(c2)
	events := f1.received("userStatusChange")
	require.Len(t, events, 3)
	data := events[2].Data.(map[string]any)
	assert.Equal(t, "u2", data["userId"])
	assert.Equal(t, false, data["online"])

	// a second disconnect of the same client broadcasts nothing
	gw.Disconnect(c2)
	assert.Len(t, f1.received("userStatusChange"), 3)

	gw.Disconnect(c1)
}

func TestSendMessageToJoinedRoom(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(context.Background(), c1, sendMessagePayload{
		ConversationKey: key,
		SenderID:        "u1",
		RecipientID:     "u2",
		Message:         "hello",
	})

	for _, f := range []*fakeConn{f1, f2} {
		got := f.received("receiveMessage")
		require.Len(t, got, 1)
		resp := got[0].Data.(*service.MessageResponse)
		assert.Equal(t, "hello", resp.Body)
		assert.Equal(t, "alice", resp.SenderUsername)
		assert.NotEmpty(t, resp.ID)
		assert.False(t, resp.CreatedAt.IsZero())
	}

	// the recipient additionally gets the direct push
	assert.Len(t, f2.received("newMessageNotification"), 1)
	assert.Empty(t, f1.received("newMessageNotification"))
}

func TestSendMessageRecipientNotJoined(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	gw.Identify("u2", f2) // identified but never joins the room
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(context.Background(), c1, sendMessagePayload{
		ConversationKey: key,
		SenderID:        "u1",
		RecipientID:     "u2",
		Message:         "ping",
	})

	assert.Empty(t, f2.received("receiveMessage"))
	notifications := f2.received("newMessageNotification")
	require.Len(t, notifications, 1)
	data := notifications[0].Data.(map[string]any)
	assert.Equal(t, key, data["conversationKey"])
	assert.Equal(t, "u1", data["senderId"])
	assert.Equal(t, "ping", data["message"])
}

func TestSendMessageOfflineRecipient(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")

	f1 := &fakeConn{}
	c1 := gw.Identify("u1", f1)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})

	// recipient offline: stored anyway, no error to the sender
	gw.SendMessage(context.Background(), c1, sendMessagePayload{
		ConversationKey: key,
		SenderID:        "u1",
		RecipientID:     "u2",
		Message:         "later",
	})

	assert.Empty(t, f1.received("messageError"))
	assert.Len(t, f1.received("receiveMessage"), 1)
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	users := memory.NewUserRepo()
	users.Seed(&domain.User{ID: "u1", Username: "alice"})
	users.Seed(&domain.User{ID: "u2", Username: "bob"})
	chat := service.NewChatService(failingMessages{memory.NewMessageRepo()}, users, 100)
	gw := NewGateway(NewHub(), chat)

	key := domain.ConversationKey("u1", "u2")
	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(context.Background(), c1, sendMessagePayload{
		ConversationKey: key,
		SenderID:        "u1",
		RecipientID:     "u2",
		Message:         "doomed",
	})

	// error to the sender only, no partial broadcast anywhere
	assert.Len(t, f1.received("messageError"), 1)
	assert.Empty(t, f1.received("receiveMessage"))
	assert.Empty(t, f2.received("receiveMessage"))
	assert.Empty(t, f2.received("newMessageNotification"))
	assert.Empty(t, f2.received("messageError"))
}

func TestSendMessageSpoofedSender(t *testing.T) {
	gw, _ := newTestGateway(t)

	f1 := &fakeConn{}
	c1 := gw.Identify("u1", f1)

	gw.SendMessage(context.Background(), c1, sendMessagePayload{
		SenderID:    "u2",
		RecipientID: "u1",
		Message:     "impersonation",
	})
	assert.Len(t, f1.received("messageError"), 1)
}

func TestTypingExcludesSender(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.Typing(c1, typingPayload{ConversationKey: key, IsTyping: true})

	assert.Empty(t, f1.received("userTyping"))
	got := f2.received("userTyping")
	require.Len(t, got, 1)
	data := got[0].Data.(map[string]any)
	assert.Equal(t, "u1", data["userId"])
	assert.Equal(t, true, data["isTyping"])
}

func TestMarkReadBroadcastsToWholeRoom(t *testing.T) {
	gw, messages := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")
	ctx := context.Background()

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(ctx, c1, sendMessagePayload{
		ConversationKey: key, SenderID: "u1", RecipientID: "u2", Message: "unread",
	})
	gw.MarkRead(ctx, c2, markAsReadPayload{ConversationKey: key})

	// everyone sees the receipt, the caller included
	assert.Len(t, f1.received("messagesRead"), 1)
	assert.Len(t, f2.received("messagesRead"), 1)

	unread, err := messages.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func TestDeleteForEveryoneAuthorization(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")
	ctx := context.Background()

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(ctx, c1, sendMessagePayload{
		ConversationKey: key, SenderID: "u1", RecipientID: "u2", Message: "oops",
	})
	msgID := f1.received("receiveMessage")[0].Data.(*service.MessageResponse).ID

	// recipient cannot delete for everyone
	gw.DeleteForEveryone(ctx, c2, deleteMessagePayload{MessageID: msgID})
	assert.Len(t, f2.received("messageError"), 1)
	assert.Empty(t, f1.received("messageDeleted"))

	// sender can; the whole room hears about it
	gw.DeleteForEveryone(ctx, c1, deleteMessagePayload{MessageID: msgID})
	for _, f := range []*fakeConn{f1, f2} {
		got := f.received("messageDeleted")
		require.Len(t, got, 1)
		data := got[0].Data.(map[string]any)
		assert.Equal(t, msgID, data["messageId"])
	}
}

func TestDeleteForMeNoBroadcast(t *testing.T) {
	gw, _ := newTestGateway(t)
	key := domain.ConversationKey("u1", "u2")
	ctx := context.Background()

	f1, f2 := &fakeConn{}, &fakeConn{}
	c1 := gw.Identify("u1", f1)
	c2 := gw.Identify("u2", f2)
	gw.JoinRoom(c1, joinRoomPayload{ConversationKey: key})
	gw.JoinRoom(c2, joinRoomPayload{ConversationKey: key})

	gw.SendMessage(ctx, c1, sendMessagePayload{
		ConversationKey: key, SenderID: "u1", RecipientID: "u2", Message: "hide me",
	})
	msgID := f2.received("receiveMessage")[0].Data.(*service.MessageResponse).ID

	gw.DeleteForMe(ctx, c2, deleteMessagePayload{MessageID: msgID})

	// purely local: the other participant hears nothing
	assert.Empty(t, f1.received("messageDeleted"))
	assert.Empty(t, f2.received("messageDeleted"))
	assert.Empty(t, f2.received("messageError"))
}
