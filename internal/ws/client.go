package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 512 * 1024
)

// Client represents a WebSocket client. Only clients connected on the
// private endpoint may log in.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	allowsLogin bool
	address     common.Address
	isAuth      bool
	closed      bool // send is closed; guarded by mu
	mu          sync.RWMutex
}

// NewClient creates a new client
func NewClient(hub *Hub, conn *websocket.Conn, privateEndpoint bool) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		allowsLogin: privateEndpoint,
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// subscriptionKey keys private channels by the logged-in address so a
// session only ever sees its own account.
func (c *Client) subscriptionKey(channel, instID string) string {
	if !isPrivateChannel(channel) {
		return buildChannelKey(channel, instID)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return buildPrivateKey(channel, instID, c.address)
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	// Handle ping/pong as simple strings
	if string(message) == "ping" {
		c.reply([]byte("pong"))
		return
	}

	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("Invalid JSON format")
		return
	}

	switch msg.Op {
	case OpSubscribe:
		accepted := make([]SubscribeArg, 0, len(msg.Args))
		for _, arg := range msg.Args {
			if !isKnownChannel(arg.Channel) {
				c.sendError("Unknown channel: " + arg.Channel)
				continue
			}
			if isPrivateChannel(arg.Channel) && !c.authenticated() {
				c.sendError("Authentication required for channel: " + arg.Channel)
				continue
			}
			c.hub.Subscribe(c, arg.Channel, arg.InstID)
			accepted = append(accepted, arg)
		}
		c.sendResponse(msg.Op, accepted)

	case OpUnsubscribe:
		for _, arg := range msg.Args {
			c.hub.Unsubscribe(c, arg.Channel, arg.InstID)
		}
		c.sendResponse(msg.Op, msg.Args)

	case OpLogin:
		c.handleLogin(msg)

	case OpPing:
		c.reply([]byte(`"pong"`))

	default:
		c.sendError("Unknown operation")
	}
}

func (c *Client) authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isAuth
}

func (c *Client) handleLogin(msg Message) {
	if !c.allowsLogin {
		c.sendError("Login is only available on the private endpoint")
		return
	}
	if c.authenticated() {
		c.sendError("Already logged in")
		return
	}

	var loginArgs LoginArgs
	if err := json.Unmarshal(msg.Data, &loginArgs); err != nil {
		c.sendError("Invalid login data format")
		return
	}

	if loginArgs.Token == "" {
		c.sendError("Token is required for authentication")
		return
	}

	claims, err := c.hub.jwtManager.ValidateToken(loginArgs.Token)
	if err != nil {
		c.hub.logger.Debug("JWT validation failed", zap.Error(err))
		c.sendError("Invalid or expired token")
		return
	}
	if !common.IsHexAddress(claims.Address) {
		c.sendError("Invalid token subject")
		return
	}

	c.mu.Lock()
	c.isAuth = true
	c.address = common.HexToAddress(claims.Address)
	c.mu.Unlock()

	c.hub.logger.Info("Client authenticated via WebSocket",
		zap.Int64("userID", claims.UserID),
		zap.String("address", claims.Address))

	c.sendResponse(OpLogin, nil)
}

// reply queues data without blocking the read loop; a full buffer means the
// hub is about to drop the client anyway.
func (c *Client) reply(data []byte) {
	c.enqueue(data)
}

// enqueue queues data without blocking. It reports false only when the
// buffer is full; data for a removed client is dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// closeSend closes the outbound queue once; WritePump then ends the
// connection.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) sendResponse(event string, args []SubscribeArg) {
	resp := map[string]interface{}{
		"event": event,
		"args":  args,
	}
	data, _ := json.Marshal(resp)
	c.reply(data)
}

func (c *Client) sendError(message string) {
	resp := map[string]interface{}{
		"event": "error",
		"msg":   message,
	}
	data, _ := json.Marshal(resp)
	c.reply(data)
}
