package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/engine"
	"socialfi-engine/pkg/ledger"
	"socialfi-engine/pkg/models"
)

const tradeTestWallet = "0xabc"

func newTradeRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	require.NoError(t, store.CreateMarket(context.Background(), &models.Market{
		ID:     "mkt1",
		PostID: "post1",
		Supply: models.DecimalFromString("100"),
		Price:  models.DecimalFromFloat(curve.Price(100)),
	}))
	store.PutUser(&models.User{
		WalletAddress:  tradeTestWallet,
		BalanceCredits: models.DecimalFromString("1000"),
	})

	h := &Handlers{
		executor: engine.NewExecutor(store),
		log:      logrus.WithField("component", "api"),
	}

	router := gin.New()
	router.POST("/trades/buy", func(c *gin.Context) {
		c.Set("wallet", tradeTestWallet)
		h.Buy(c)
	})
	return router
}

func postTrade(t *testing.T, router *gin.Engine, body map[string]interface{}, header string) *engine.TradeResult {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/trades/buy", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set("X-Idempotency-Key", header)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result engine.TradeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return &result
}

func TestBuyIdempotencyKeyFromBody(t *testing.T) {
	router := newTradeRouter(t)
	body := map[string]interface{}{
		"market_id":       "mkt1",
		"shares":          "5",
		"idempotency_key": "order-1",
	}

	first := postTrade(t, router, body, "")
	assert.False(t, first.Replayed)

	second := postTrade(t, router, body, "")
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TradeID, second.TradeID)
}

func TestBuyIdempotencyHeaderOverridesBody(t *testing.T) {
	router := newTradeRouter(t)
	body := map[string]interface{}{
		"market_id":       "mkt1",
		"shares":          "5",
		"idempotency_key": "body-key",
	}

	first := postTrade(t, router, body, "header-key")
	assert.False(t, first.Replayed)

	// Same header, different body key: the header wins, so this replays.
	body["idempotency_key"] = "another-body-key"
	second := postTrade(t, router, body, "header-key")
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TradeID, second.TradeID)

	// No header now, so the body key is a fresh trade.
	third := postTrade(t, router, body, "")
	assert.False(t, third.Replayed)
	assert.NotEqual(t, first.TradeID, third.TradeID)
}
