package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/jwt"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/service"
)

// Message types
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpLogin       = "login"
	OpPing        = "ping"
	OpPong        = "pong"
)

// Channel names
const (
	ChannelMarkets     = "markets"
	ChannelMarkPrice   = "mark-price"
	ChannelFundingRate = "funding-rate"
	ChannelTrades      = "trades"
	ChannelAccount     = "account"
	ChannelPositions   = "positions"
	ChannelOrders      = "orders"
	ChannelLiquidation = "liquidation-warning"
)

// Message represents a WebSocket message
type Message struct {
	Op   string          `json:"op"`
	Args []SubscribeArg  `json:"args,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeArg represents subscription arguments. An empty InstID subscribes
// to every market.
type SubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId,omitempty"`
}

// LoginArgs represents login arguments
type LoginArgs struct {
	Token string `json:"token"` // JWT access token
}

// PushMessage represents a message pushed to clients
type PushMessage struct {
	Arg  SubscribeArg    `json:"arg"`
	Data json.RawMessage `json:"data"`
}

type delivery struct {
	keys []string
	msg  *PushMessage
}

// Hub manages WebSocket connections
type Hub struct {
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool // channel key -> clients
	broadcast     chan delivery
	register      chan *Client
	unregister    chan *Client
	done          chan struct{}
	jwtManager    *jwt.Manager
	metrics       *metrics.Metrics
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(jwtManager *jwt.Manager, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		broadcast:     make(chan delivery, 1024),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		jwtManager:    jwtManager,
		metrics:       m,
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Debug("Client connected", zap.String("addr", client.remoteAddr()))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Debug("Client disconnected", zap.String("addr", client.remoteAddr()))

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

// removeLocked drops client from the hub. h.mu must be held.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for key, subs := range h.subscriptions {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, key)
		}
	}
	client.closeSend()
}

func (h *Hub) deliver(d delivery) {
	data, err := json.Marshal(d.msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	seen := make(map[*Client]bool)
	for _, key := range d.keys {
		for client := range h.subscriptions[key] {
			if seen[client] {
				continue
			}
			seen[client] = true
			if !client.enqueue(data) {
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	// Client buffer full, disconnect
	h.mu.Lock()
	for _, client := range slow {
		h.removeLocked(client)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(n)
}

// Subscribe adds a client to a channel
func (h *Hub) Subscribe(client *Client, channel, instID string) {
	channelKey := client.subscriptionKey(channel, instID)

	h.mu.Lock()
	defer h.mu.Unlock()

	// A removed client may still be draining its read loop.
	if client.isClosed() {
		return
	}
	if h.subscriptions[channelKey] == nil {
		h.subscriptions[channelKey] = make(map[*Client]bool)
	}
	h.subscriptions[channelKey][client] = true

	h.logger.Debug("Client subscribed", zap.String("channel", channelKey))
}

// Unsubscribe removes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel, instID string) {
	channelKey := client.subscriptionKey(channel, instID)

	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subscriptions[channelKey]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, channelKey)
		}
	}

	h.logger.Debug("Client unsubscribed", zap.String("channel", channelKey))
}

// Broadcast sends data to the subscribers of a public channel for instID and
// to those subscribed to the channel across all markets.
func (h *Hub) Broadcast(channel, instID string, data interface{}) {
	h.enqueue([]string{buildChannelKey(channel, instID), channel}, channel, instID, data)
}

// BroadcastTo sends data on a private channel to the sessions of owner.
func (h *Hub) BroadcastTo(owner common.Address, channel, instID string, data interface{}) {
	keys := []string{
		buildPrivateKey(channel, instID, owner),
		buildPrivateKey(channel, "", owner),
	}
	h.enqueue(keys, channel, instID, data)
}

func (h *Hub) enqueue(keys []string, channel, instID string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast data", zap.Error(err))
		return
	}

	d := delivery{
		keys: keys,
		msg: &PushMessage{
			Arg:  SubscribeArg{Channel: channel, InstID: instID},
			Data: jsonData,
		},
	}
	select {
	case h.broadcast <- d:
	default:
		h.logger.Warn("Broadcast queue full, dropping message",
			zap.String("channel", channel),
			zap.String("instId", instID))
	}
}

// Publish routes committed engine events to their channels.
func (h *Hub) Publish(_ context.Context, events []engine.Event) {
	for _, ev := range events {
		for _, r := range routesFor(ev) {
			if r.private {
				h.BroadcastTo(r.owner, r.channel, ev.Market, ev)
			} else {
				h.Broadcast(r.channel, ev.Market, ev)
			}
		}
	}
}

func (h *Hub) PushMarkPrice(mp *model.MarkPrice) {
	h.Broadcast(ChannelMarkPrice, mp.Market, mp)
}

func (h *Hub) PushFundingRate(info *model.FundingRateInfo) {
	h.Broadcast(ChannelFundingRate, info.Market, info)
}

func (h *Hub) PushLiquidationWarning(w service.LiquidationWarning) {
	h.BroadcastTo(common.HexToAddress(w.Trader), ChannelLiquidation, w.Market, w)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func buildChannelKey(channel, instID string) string {
	if instID != "" {
		return channel + ":" + instID
	}
	return channel
}

func buildPrivateKey(channel, instID string, owner common.Address) string {
	return buildChannelKey(channel, instID) + "@" + strings.ToLower(owner.Hex())
}

// Register adds a client to the hub. It reports false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// isPrivateChannel checks if a channel requires authentication
func isPrivateChannel(channel string) bool {
	switch channel {
	case ChannelAccount, ChannelPositions, ChannelOrders, ChannelLiquidation:
		return true
	}
	return false
}

func isKnownChannel(channel string) bool {
	switch channel {
	case ChannelMarkets, ChannelMarkPrice, ChannelFundingRate, ChannelTrades:
		return true
	}
	return isPrivateChannel(channel)
}
