// internal/handlers/websocket/websocket.go
package websocket

import (
	"net/http"

	"simcomps-service/internal/middleware"
	"simcomps-service/internal/pkg/response"
	ws "simcomps-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Session cookies are SameSite=Strict, so cross-origin pages never
		// reach the authenticated path in the first place.
		return true
	},
}

type WebSocketHandler struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleConnection upgrades an authenticated request to a websocket and
// registers the connection as the user's presence transport.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "please sign in first", response.CodeLoginRequired)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, u.ID, u.Name, u.IsAdmin(), h.logger)
	h.hub.Register <- client
	client.Start()
}
