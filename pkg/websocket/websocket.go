package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub fans out market ticker events to subscribed WebSocket clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	// Subscriptions keyed by market ID, "all" subscribes to every market.
	marketSubscriptions map[string]map[*Client]bool

	mu sync.RWMutex
}

// Client represents a WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id            string
	subscriptions map[string]bool
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Message types
const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeTickerUpdate = "ticker_update"
	MessageTypeTradeUpdate  = "trade_update"
)

// ChannelTicker carries price and supply after each committed trade.
const ChannelTicker = "ticker"

// WebSocket connection settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:             make(map[*Client]bool),
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		marketSubscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	logrus.Debugf("websocket client registered: %s", client.id)

	welcome := Message{
		Type:      "welcome",
		Data:      map[string]interface{}{"client_id": client.id},
		Timestamp: time.Now().Unix(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		h.trySend(client, data)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dropClient(client) {
		logrus.Debugf("websocket client unregistered: %s", client.id)
	}
}

// dropClient removes a client from the hub and from every market it
// subscribed to, then closes its send channel. Once dropped, no broadcast
// path can reach the closed channel. Idempotent; caller must hold h.mu.
func (h *Hub) dropClient(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)

	for marketID := range client.subscriptions {
		if clients, ok := h.marketSubscriptions[marketID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.marketSubscriptions, marketID)
			}
		}
	}
	close(client.send)
	return true
}

func (h *Hub) pingClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ping := Message{Type: MessageTypePing, Timestamp: time.Now().Unix()}
	if data, err := json.Marshal(ping); err == nil {
		for client := range h.clients {
			h.trySend(client, data)
		}
	}
}

// trySend queues a message without blocking; a client with a full buffer is
// dropped. Caller must hold h.mu.
func (h *Hub) trySend(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.dropClient(client)
	}
}

// SubscribeToMarket subscribes a client to one market's ticker.
func (h *Hub) SubscribeToMarket(client *Client, marketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.marketSubscriptions[marketID] == nil {
		h.marketSubscriptions[marketID] = make(map[*Client]bool)
	}
	h.marketSubscriptions[marketID][client] = true
	client.subscriptions[marketID] = true
}

// UnsubscribeFromMarket removes a client's market subscription.
func (h *Hub) UnsubscribeFromMarket(client *Client, marketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.marketSubscriptions[marketID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.marketSubscriptions, marketID)
		}
	}
	delete(client.subscriptions, marketID)
}

// BroadcastTicker pushes new price and supply to every subscriber of the
// market, plus the wildcard subscribers.
func (h *Hub) BroadcastTicker(marketID string, ticker interface{}) {
	h.broadcastToMarket(marketID, Message{
		Type:      MessageTypeTickerUpdate,
		Channel:   fmt.Sprintf("%s.%s", ChannelTicker, marketID),
		Data:      ticker,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastTrade pushes an executed trade to the market's subscribers.
func (h *Hub) BroadcastTrade(marketID string, trade interface{}) {
	h.broadcastToMarket(marketID, Message{
		Type:      MessageTypeTradeUpdate,
		Channel:   fmt.Sprintf("%s.%s", ChannelTicker, marketID),
		Data:      trade,
		Timestamp: time.Now().Unix(),
	})
}

func (h *Hub) broadcastToMarket(marketID string, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.marketSubscriptions[marketID] {
		h.trySend(client, data)
	}
	for client := range h.marketSubscriptions["all"] {
		h.trySend(client, data)
	}
}

// HandleWebSocket upgrades the HTTP connection and starts the client pumps.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            fmt.Sprintf("%d", time.Now().UnixNano()),
		subscriptions: make(map[string]bool),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("websocket error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
	var req SubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch req.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(req)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case MessageTypePong:
	default:
		c.sendError("Unknown message type")
	}
}

func (c *Client) handleSubscribe(req SubscriptionRequest) {
	marketID, ok := parseTickerChannel(req.Channel)
	if !ok {
		c.sendError("Invalid channel")
		return
	}
	c.hub.SubscribeToMarket(c, marketID)
	c.confirm("subscribed", req.Channel)
}

func (c *Client) handleUnsubscribe(req SubscriptionRequest) {
	marketID, ok := parseTickerChannel(req.Channel)
	if !ok {
		c.sendError("Invalid channel")
		return
	}
	c.hub.UnsubscribeFromMarket(c, marketID)
	c.confirm("unsubscribed", req.Channel)
}

// parseTickerChannel maps "ticker" to the wildcard and "ticker.<market>" to
// a single market.
func parseTickerChannel(channel string) (string, bool) {
	if channel == ChannelTicker {
		return "all", true
	}
	if strings.HasPrefix(channel, ChannelTicker+".") {
		marketID := strings.TrimPrefix(channel, ChannelTicker+".")
		if marketID != "" {
			return marketID, true
		}
	}
	return "", false
}

func (c *Client) confirm(msgType, channel string) {
	response := Message{
		Type:      msgType,
		Channel:   channel,
		Timestamp: time.Now().Unix(),
	}
	if data, err := json.Marshal(response); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (c *Client) sendError(message string) {
	errorMsg := Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": message},
		Timestamp: time.Now().Unix(),
	}
	if data, err := json.Marshal(errorMsg); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Stats reports hub counters for the health endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"total_clients":        len(h.clients),
		"market_subscriptions": len(h.marketSubscriptions),
	}
}
