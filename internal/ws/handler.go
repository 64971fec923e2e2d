package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"campushub/internal/domain"
	"campushub/internal/metrics"
	"campushub/internal/security"
)

const (
	// generous enough for an attachment-bearing send frame
	readLimit    = int64(64 << 10)
	readDeadline = 90 * time.Second
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	// Browsers cannot set headers on the WebSocket constructor, so the
	// SPA smuggles the token through the subprotocol list.
	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or
// Sec-WebSocket-Protocol), then runs the per-connection state machine:
//   - userOnline        -> register presence, broadcast userStatusChange
//   - joinRoom          -> subscribe to a conversation room
//   - sendMessage       -> persist, then broadcast + direct notification
//   - typing            -> relay to room excluding sender
//   - markAsRead        -> bulk flag update + messagesRead to room
//   - deleteForMe       -> hide for requester, no broadcast
//   - deleteForEveryone -> tombstone + messageDeleted to room
func MakeHandler(
	gw *Gateway,
	tokens *security.TokenService,
	users domain.UserRepository,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Subject(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if _, err := users.GetByID(r.Context(), userID); err != nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// The request context is cancelled by the router's timeout
		// middleware; the socket outlives it.
		ctx := context.Background()

		conn.SetReadLimit(readLimit)
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readDeadline))
		})

		// nil until the client announces itself with userOnline
		var c *Client
		defer func() {
			if c != nil {
				gw.Disconnect(c)
			}
		}()

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			if _, known := clientEvents[env.Event]; known {
				metrics.Events.WithLabelValues(env.Event).Inc()
			}

			if env.Event == evUserOnline {
				var p userOnlinePayload
				_ = json.Unmarshal(env.Data, &p)
				if p.UserID != "" && p.UserID != userID {
					sendError(conn, "identity does not match token")
					continue
				}
				if c == nil {
					c = gw.Identify(userID, conn)
				}
				continue
			}

			if c == nil {
				sendError(conn, "announce userOnline first")
				continue
			}

			switch env.Event {

			case evJoinRoom:
				var p joinRoomPayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					continue
				}
				gw.JoinRoom(c, p)

			case evSendMessage:
				var p sendMessagePayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					_ = c.Send(errorEvent("malformed sendMessage payload"))
					continue
				}
				gw.SendMessage(ctx, c, p)

			case evTyping:
				var p typingPayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					continue
				}
				gw.Typing(c, p)

			case evMarkAsRead:
				var p markAsReadPayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					continue
				}
				gw.MarkRead(ctx, c, p)

			case evDeleteForMe:
				var p deleteMessagePayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					continue
				}
				gw.DeleteForMe(ctx, c, p)

			case evDeleteForEveryone:
				var p deleteMessagePayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					continue
				}
				gw.DeleteForEveryone(ctx, c, p)

			default:
				log.Printf("ws: unknown event %q from user %s", env.Event, userID)
			}
		}
	}
}

func sendError(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(errorEvent(msg))
}
