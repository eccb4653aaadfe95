package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialfi-engine/pkg/engine"
)

func TestWriteTradeErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{log: logrus.WithField("component", "api")}

	tests := []struct {
		name      string
		code      engine.ErrorCode
		status    int
		retryable bool
	}{
		{"invalid argument", engine.CodeInvalidArgument, http.StatusBadRequest, false},
		{"not found", engine.CodeNotFound, http.StatusNotFound, false},
		{"frozen", engine.CodeMarketFrozen, http.StatusConflict, false},
		{"insufficient balance", engine.CodeInsufficientBalance, http.StatusBadRequest, false},
		{"insufficient shares", engine.CodeInsufficientShares, http.StatusBadRequest, false},
		{"conflict", engine.CodeTradeConflict, http.StatusConflict, true},
		{"consistency failure", engine.CodeConsistencyFailure, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			h.writeTradeError(c, &engine.TradeError{Code: tt.code, Message: "boom"})

			assert.Equal(t, tt.status, w.Code)

			var body struct {
				Error     string `json:"error"`
				Code      string `json:"code"`
				Retryable bool   `json:"retryable"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, string(tt.code), body.Code)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}

func TestWriteTradeErrorOpaqueOnUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{log: logrus.WithField("component", "api")}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.writeTradeError(c, errors.New("sql: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
