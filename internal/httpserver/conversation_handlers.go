package httpserver

import (
	"net/http"

	"campushub/internal/domain"
	"campushub/internal/service"
)

type conversationSummaryResponse struct {
	ConversationKey string                   `json:"conversationKey"`
	OtherUser       *domain.User             `json:"otherUser"`
	LastMessage     *service.MessageResponse `json:"lastMessage"`
	UnreadCount     int64                    `json:"unreadCount"`
}

// @Summary      Recent conversations
// @Description  One entry per conversation, newest first, with the other participant and an unread count.
// @Tags         chat
// @Produce      json
// @Success      200  {array}  conversationSummaryResponse
// @Router       /chat/conversations [get]
func handleRecentConversations(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		summaries, err := chat.RecentConversations(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		res := make([]conversationSummaryResponse, 0, len(summaries))
		for _, s := range summaries {
			res = append(res, conversationSummaryResponse{
				ConversationKey: s.ConversationKey,
				OtherUser:       s.OtherUser,
				LastMessage:     chat.ToResponse(r.Context(), s.LastMessage),
				UnreadCount:     s.UnreadCount,
			})
		}
		writeJSON(w, http.StatusOK, res)
	}
}
