package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, buffer int) *Client {
	client := &Client{
		hub:           h,
		send:          make(chan []byte, buffer),
		id:            "test",
		subscriptions: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	return client
}

func TestBroadcastAfterStalledClientDropped(t *testing.T) {
	h := NewHub()
	client := newTestClient(h, 1)
	h.SubscribeToMarket(client, "mkt1")

	h.BroadcastTicker("mkt1", map[string]string{"price": "1.01"})
	h.BroadcastTicker("mkt1", map[string]string{"price": "1.02"})

	require.NotPanics(t, func() {
		h.BroadcastTicker("mkt1", map[string]string{"price": "1.03"})
	})

	h.mu.RLock()
	assert.NotContains(t, h.clients, client)
	assert.Empty(t, h.marketSubscriptions["mkt1"])
	h.mu.RUnlock()
}

func TestStalledWildcardSubscriberDropped(t *testing.T) {
	h := NewHub()
	client := newTestClient(h, 1)
	h.SubscribeToMarket(client, "all")

	h.BroadcastTrade("mkt1", map[string]string{"side": "buy"})
	h.BroadcastTrade("mkt2", map[string]string{"side": "sell"})

	require.NotPanics(t, func() {
		h.BroadcastTicker("mkt3", map[string]string{"price": "2.50"})
	})

	h.mu.RLock()
	assert.Empty(t, h.marketSubscriptions["all"])
	h.mu.RUnlock()
}

func TestUnregisterAfterDropIsNoop(t *testing.T) {
	h := NewHub()
	client := newTestClient(h, 1)
	h.SubscribeToMarket(client, "mkt1")

	h.BroadcastTicker("mkt1", map[string]string{"price": "1.01"})
	h.BroadcastTicker("mkt1", map[string]string{"price": "1.02"})

	require.NotPanics(t, func() {
		h.unregisterClient(client)
	})
}

func TestHealthySubscriberReceivesBroadcasts(t *testing.T) {
	h := NewHub()
	client := newTestClient(h, 16)
	h.SubscribeToMarket(client, "mkt1")

	h.BroadcastTicker("mkt1", map[string]string{"price": "1.01"})
	h.BroadcastTicker("mkt2", map[string]string{"price": "9.99"})

	require.Len(t, client.send, 1)

	h.mu.RLock()
	assert.Contains(t, h.clients, client)
	assert.Contains(t, h.marketSubscriptions["mkt1"], client)
	h.mu.RUnlock()
}

func TestParseTickerChannel(t *testing.T) {
	tests := []struct {
		channel  string
		marketID string
		ok       bool
	}{
		{"ticker", "all", true},
		{"ticker.mkt1", "mkt1", true},
		{"ticker.", "", false},
		{"orderbook.mkt1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		marketID, ok := parseTickerChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, tt.channel)
		assert.Equal(t, tt.marketID, marketID, tt.channel)
	}
}
