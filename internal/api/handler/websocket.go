package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/madrasah_billing_server/internal/api/middleware"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/ws"
)

const wsReadTimeout = 90 * time.Second

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWebSocketHandler allowedOrigins 为空或包含 "*" 时不校验 Origin
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, log *zap.Logger) *WebSocketHandler {
	checkAll := len(allowedOrigins) == 0
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			checkAll = true
		}
		origins[o] = struct{}{}
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if checkAll {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

// Handle 账单事件推送
// GET /api/v1/billing/ws?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	userID, _ := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Int64("organization_id", orgID), zap.Error(err))
		return
	}

	client := &ws.Client{
		OrganizationID: orgID,
		UserID:         userID,
		Conn:           conn,
	}
	h.hub.Register(client)

	// 只读不处理，用于感知断开
	go func() {
		defer func() {
			h.hub.Unregister(client)
			conn.Close()
		}()
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		}
	}()
}
