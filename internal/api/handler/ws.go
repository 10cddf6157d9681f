package handler

import (
	"net/http"

	"matchroom/backend/internal/chathub"
	"matchroom/backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection. AuthMiddleware has already checked the token.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(userID, conn, h.Hub)
	if !h.Hub.Register(client) {
		_ = conn.Close()
		return
	}
	client.Run()
}
