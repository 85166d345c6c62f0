package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Hub struct {
	// 同一机构可能有多个成员、多个标签页同时在线
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     *zap.Logger
}

type Client struct {
	OrganizationID int64
	UserID         int64
	Conn           *websocket.Conn
	mu             sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.OrganizationID] == nil {
		h.clients[client.OrganizationID] = make(map[*Client]struct{})
	}
	h.clients[client.OrganizationID][client] = struct{}{}

	h.log.Info("billing ws connected",
		zap.Int64("organization_id", client.OrganizationID),
		zap.Int64("user_id", client.UserID),
		zap.Int("org_conns", len(h.clients[client.OrganizationID])),
	)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.OrganizationID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.OrganizationID)
		}
	}
	h.log.Info("billing ws disconnected",
		zap.Int64("organization_id", client.OrganizationID),
		zap.Int64("user_id", client.UserID),
	)
}

// SendToOrganization 向机构的所有连接发送消息
func (h *Hub) SendToOrganization(orgID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[orgID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn("billing ws write failed", zap.Int64("organization_id", orgID), zap.Error(err))
		}
	}
	return nil
}

// IsOnline 机构是否有在线连接
func (h *Hub) IsOnline(orgID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[orgID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
