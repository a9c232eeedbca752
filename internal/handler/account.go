package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAccount godoc
// @Summary      Get exchange account balances
// @Description  Returns non-zero balances and their USDT value. Requires BINANCE_API_KEY and BINANCE_API_SECRET.
// @Tags         account
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /api/account [get]
func (h *Handler) GetAccount(c *gin.Context) {
	if h.accountService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "account service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-account")
	defer span.End()

	snapshot := h.accountService.GetAccountInfo(ctx)
	if snapshot.Error != "" {
		c.JSON(http.StatusServiceUnavailable, snapshot)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetDecisions godoc
// @Summary      Get the latest model decisions
// @Description  Returns the decisions produced by the most recent poll cycle. Decisions are advisory; no orders are placed.
// @Tags         decisions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/decisions [get]
func (h *Handler) GetDecisions(c *gin.Context) {
	if h.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision poller unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": h.decisions.Latest()})
}
