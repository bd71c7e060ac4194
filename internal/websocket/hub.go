package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/monitoring"
)

// AccessChecker 校验邮箱是否为会话参与方。
type AccessChecker interface {
	CheckAccess(conversationID int64, email string) error
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMessage  MessageType = "new_message"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type           MessageType     `json:"type"`
	ConversationID int64           `json:"conversationId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	conversations map[int64]bool // 已订阅的会话ID
	mu            sync.RWMutex
	log           *zap.Logger

	UserID string
	Email  string
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients       map[string]*Client           // clientID -> Client
	conversations map[int64]map[string]*Client // conversationID -> clientID -> Client
	register      chan *Client
	unregister    chan *Client
	broadcast     chan *BroadcastMessage
	mu            sync.RWMutex
	log           *zap.Logger

	allowedOrigins []string
	jwtManager     *jwt.Manager
	access         AccessChecker
	metrics        *monitoring.Metrics
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	ConversationID int64
	Message        *Message
}

// NewHub 创建WebSocket Hub
func NewHub(
	allowedOrigins []string,
	jwtManager *jwt.Manager,
	access AccessChecker,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		conversations:  make(map[int64]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		jwtManager:     jwtManager,
		access:         access,
		metrics:        metrics,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.metrics.WebsocketConnections.Inc()
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for conversationID := range client.conversations {
					if clients, exists := h.conversations[conversationID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.conversations, conversationID)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.metrics.WebsocketConnections.Dec()
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToConversation(msg.ConversationID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewMessageData 新消息通知数据
type NewMessageData struct {
	MessageID      string `json:"messageId"`
	ConversationID int64  `json:"conversationId"`
	SenderType     string `json:"senderType"`
	Text           string `json:"text"`
	IsEmailReply   bool   `json:"isEmailReply"`
	CreatedAt      string `json:"createdAt"`
}

// PushNewMessage 向订阅该会话的客户端推送新消息。
func (h *Hub) PushNewMessage(conversationID int64, message *domain.ConversationMessage) {
	data, err := json.Marshal(NewMessageData{
		MessageID:      message.ID,
		ConversationID: conversationID,
		SenderType:     string(message.SenderType),
		Text:           message.Text,
		IsEmailReply:   message.IsEmailReply,
		CreatedAt:      message.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new message data", zap.Error(err))
		return
	}

	h.broadcast <- &BroadcastMessage{
		ConversationID: conversationID,
		Message: &Message{
			Type:           MessageTypeNewMessage,
			ConversationID: conversationID,
			Data:           data,
			Timestamp:      time.Now(),
		},
	}
}

// broadcastToConversation 向订阅特定会话的客户端广播消息
func (h *Hub) broadcastToConversation(conversationID int64, msg *Message) {
	h.mu.RLock()
	clients := h.conversations[conversationID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.conversations = make(map[int64]map[string]*Client)
}

// authenticateClient 认证客户端
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}

	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:            uuid.NewString(),
		UserID:        claims.UserID,
		Email:         claims.Email,
		conversations: make(map[int64]bool),
		log:           h.log,
	}, nil
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()),
			)
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeConversation(msg.ConversationID)
	case MessageTypeUnsubscribe:
		c.unsubscribeConversation(msg.ConversationID)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeConversation 订阅会话
func (c *Client) subscribeConversation(conversationID int64) {
	if conversationID == 0 {
		c.sendError("conversation ID is required")
		return
	}

	// 订阅前校验参与方身份
	if err := c.hub.access.CheckAccess(conversationID, c.Email); err != nil {
		c.log.Warn("subscription denied",
			zap.String("client_id", c.ID),
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		c.sendError("no permission to access this conversation")
		return
	}

	c.mu.Lock()
	c.conversations[conversationID] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.conversations[conversationID] == nil {
		c.hub.conversations[conversationID] = make(map[string]*Client)
	}
	c.hub.conversations[conversationID][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to conversation",
		zap.String("client_id", c.ID),
		zap.Int64("conversation_id", conversationID),
		zap.String("user_id", c.UserID),
	)

	c.sendMessage(&Message{
		Type:           MessageTypeSubscribed,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	})
}

// unsubscribeConversation 取消订阅会话
func (c *Client) unsubscribeConversation(conversationID int64) {
	c.mu.Lock()
	delete(c.conversations, conversationID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.conversations[conversationID]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.conversations, conversationID)
		}
	}
	c.hub.mu.Unlock()

	c.log.Info("unsubscribed from conversation",
		zap.String("client_id", c.ID),
		zap.Int64("conversation_id", conversationID),
	)
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("client_id", c.ID))
	}
}
