package handlers

import (
	"net/http"

	"plainchat/internal/apperr"
	"plainchat/internal/auth"
	"plainchat/internal/database"
	"plainchat/internal/services"
	ws "plainchat/internal/websocket"
	"plainchat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authenticator *auth.Authenticator
	users         database.UserRepository
	presence      *services.Presence
	hubManager    *ws.Manager
	upgrader      websocket.Upgrader
}

func NewWebSocketHandlers(authenticator *auth.Authenticator, users database.UserRepository, presence *services.Presence, hubManager *ws.Manager) *WebSocketHandlers {
	return &WebSocketHandlers{
		authenticator: authenticator,
		users:         users,
		presence:      presence,
		hubManager:    hubManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket authenticates the handshake before upgrading. A rejected
// handshake never reaches any room event handler.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authenticator.Authenticate(ctx, credential(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.users.GetUserByID(ctx, userID)
	if apperr.IsNotFound(err) {
		writeJSON(w, http.StatusUnauthorized, apperr.Body{Error: map[string]string{
			"msg": apperr.ErrInvalidToken.Error(), "token": "invalid",
		}})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.presence.SetOnline(ctx, user.Username); err != nil {
		writeError(w, r, err)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		_ = h.presence.SetOffline(ctx, user.Username)
		return
	}

	if _, err := h.hubManager.Serve(conn, user); err != nil {
		logger.Error("Error starting client for %s: %v", user.Username, err)
		_ = h.presence.SetOffline(ctx, user.Username)
		conn.Close()
	}
}
