package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/model/health"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 1024
	sendBuffer     = 16
	maxPending     = 20
)

// Inbound 客户端通过 websocket 发送的消息。
type Inbound struct {
	Type       string `json:"type"`
	ReminderID string `json:"reminderId"`
	Response   string `json:"response"`
}

// InboundHandler 处理客户端消息，可返回一条回复通知。
type InboundHandler func(ctx context.Context, userID string, msg Inbound) (*health.Notification, error)

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan health.Notification
}

// Hub fans notifications out to every websocket a user has open.
// Notifications for offline users are kept (bounded) and flushed on connect.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	pending map[string][]health.Notification
	inbound InboundHandler
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		pending: make(map[string][]health.Notification),
		logger:  logger.Named("notify"),
	}
}

// SetInboundHandler 注册客户端消息处理函数。
func (h *Hub) SetInboundHandler(handler InboundHandler) {
	h.mu.Lock()
	h.inbound = handler
	h.mu.Unlock()
}

// Publish 投递通知，返回送达的连接数。用户不在线时暂存。
func (h *Hub) Publish(n health.Notification) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[n.UserID]
	if len(conns) == 0 {
		queue := append(h.pending[n.UserID], n)
		if len(queue) > maxPending {
			queue = queue[len(queue)-maxPending:]
		}
		h.pending[n.UserID] = queue
		return 0
	}

	delivered := 0
	for c := range conns {
		select {
		case c.send <- n:
			delivered++
		default:
			h.logger.Warn("notification dropped, client too slow", zap.String("user_id", n.UserID))
		}
	}
	return delivered
}

// Pending 返回并清空用户的离线通知。
func (h *Hub) Pending(userID string) []health.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := h.pending[userID]
	delete(h.pending, userID)
	return queue
}

// Connected returns the number of open sockets for the user.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve 接管一个已升级的连接，直到连接关闭或 ctx 结束。
func (h *Hub) Serve(ctx context.Context, userID string, conn *websocket.Conn) {
	c := &client{conn: conn, userID: userID, send: make(chan health.Notification, sendBuffer)}

	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	backlog := h.pending[userID]
	delete(h.pending, userID)
	h.mu.Unlock()

	h.logger.Info("websocket connected", zap.String("user_id", userID), zap.Int("backlog", len(backlog)))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, c, backlog)
	}()

	h.readLoop(ctx, c)
	cancel()
	<-done
	h.remove(c)
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		h.handleInbound(ctx, c, data)
	}
}

func (h *Hub) handleInbound(ctx context.Context, c *client, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("ignoring malformed inbound message", zap.String("user_id", c.userID), zap.Error(err))
		return
	}

	h.mu.RLock()
	handler := h.inbound
	h.mu.RUnlock()
	if handler == nil {
		return
	}

	reply, err := handler(ctx, c.userID, msg)
	if err != nil {
		h.logger.Warn("inbound message failed", zap.String("user_id", c.userID), zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if reply == nil {
		return
	}
	select {
	case c.send <- *reply:
	default:
	}
}

func (h *Hub) writePump(ctx context.Context, c *client, backlog []health.Notification) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(n health.Notification) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(n); err != nil {
			h.logger.Warn("websocket write failed", zap.String("user_id", c.userID), zap.Error(err))
			return false
		}
		return true
	}

	for _, n := range backlog {
		if !write(n) {
			_ = c.conn.Close()
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case n := <-c.send:
			if !write(n) {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.logger.Info("websocket disconnected", zap.String("user_id", c.userID))
}
