package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"campushub/internal/domain"
	"campushub/internal/service"
	"campushub/internal/ws"
)

// viewerInKey reports whether the user is one of the two participants
// encoded in the conversation key.
func viewerInKey(key, userID string) bool {
	a, b, ok := domain.ConversationParticipants(key)
	return ok && (a == userID || b == userID)
}

// @Summary      Conversation history
// @Description  Most recent messages of a conversation, ascending by time. Marks fetched messages as read.
// @Tags         chat
// @Produce      json
// @Param        conversationKey path string true "Conversation key"
// @Param        limit query int false "Max messages (capped at 100)"
// @Success      200  {array}  service.MessageResponse
// @Failure      403  {object} map[string]string
// @Router       /chat/conversations/{conversationKey}/messages [get]
func handleHistory(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		key := chi.URLParam(r, "conversationKey")
		if !viewerInKey(key, currentUser.ID) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a participant in this conversation"})
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		msgs, err := chat.History(r.Context(), key, currentUser.ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}

		// Opening a thread implies reading it.
		if _, err := chat.MarkRead(r.Context(), key, currentUser.ID); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, chat.ToResponses(r.Context(), msgs))
	}
}

// @Summary      Global unread count
// @Tags         chat
// @Produce      json
// @Success      200  {object} map[string]int64
// @Router       /chat/unread-count [get]
func handleUnreadCount(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		count, err := chat.UnreadCount(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
	}
}

// @Summary      Delete a message for everyone
// @Description  Sender-only. Replaces the body with a tombstone and notifies the room.
// @Tags         chat
// @Produce      json
// @Param        messageID path string true "Message ID"
// @Success      200  {object} map[string]string
// @Failure      403  {object} map[string]string
// @Router       /chat/messages/{messageID} [delete]
func handleDeleteForEveryone(chat *service.ChatService, gw *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgID := chi.URLParam(r, "messageID")
		msg, err := chat.DeleteForEveryone(r.Context(), msgID, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		gw.BroadcastMessageDeleted(msg.ConversationKey, msg.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// @Summary      Delete a message for me
// @Description  Hides the message from the requester only.
// @Tags         chat
// @Produce      json
// @Param        messageID path string true "Message ID"
// @Success      200  {object} map[string]string
// @Router       /chat/messages/{messageID}/me [delete]
func handleDeleteForMe(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgID := chi.URLParam(r, "messageID")
		if err := chat.DeleteForMe(r.Context(), msgID, currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
