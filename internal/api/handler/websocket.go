package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/ws"
)

// WebSocketHandler upgrades connections and hands them to the hub
type WebSocketHandler struct {
	hub            *ws.Hub
	logger         *zap.Logger
	allowedOrigins map[string]struct{}
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:            hub,
		logger:         logger,
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		handler.allowedOrigins[o] = struct{}{}
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}

	return handler
}

// checkOrigin validates WebSocket connection origins against the whitelist.
// Non-browser clients send no Origin and are let through.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.allowedOrigins[origin]; ok {
		return true
	}

	h.logger.Warn("WebSocket connection rejected from unauthorized origin",
		zap.String("origin", origin))
	return false
}

// HandlePublicWS serves market data channels
// GET /ws/public
func (h *WebSocketHandler) HandlePublicWS(c *gin.Context) {
	h.serve(c, false)
}

// HandlePrivateWS serves account channels after a JWT login message
// GET /ws/private
func (h *WebSocketHandler) HandlePrivateWS(c *gin.Context) {
	h.serve(c, true)
}

func (h *WebSocketHandler) serve(c *gin.Context, private bool) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, private)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}

	h.logger.Debug("WebSocket connection established",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Bool("private", private))

	go client.WritePump()
	go client.ReadPump()
}
