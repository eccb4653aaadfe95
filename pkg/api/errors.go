package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"socialfi-engine/pkg/engine"
)

// writeTradeError maps an executor error to an HTTP response. Unknown errors
// become opaque 500s; internal detail stays in the logs.
func (h *Handlers) writeTradeError(c *gin.Context, err error) {
	te, ok := engine.AsTradeError(err)
	if !ok {
		h.log.WithError(err).Error("unexpected trade error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch te.Code {
	case engine.CodeInvalidArgument, engine.CodeInsufficientBalance, engine.CodeInsufficientShares:
		status = http.StatusBadRequest
	case engine.CodeNotFound:
		status = http.StatusNotFound
	case engine.CodeMarketFrozen, engine.CodeTradeConflict:
		status = http.StatusConflict
	case engine.CodeConsistencyFailure:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"error":     te.Message,
		"code":      te.Code,
		"retryable": te.Retryable(),
	})
}
