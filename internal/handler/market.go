package handler

import (
	"net/http"
	"strconv"
	"strings"

	"alpha-arena/internal/chart"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/repository"
	"alpha-arena/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const defaultInterval = "5m"

// GetAllMarketData godoc
// @Summary      Get every configured instrument
// @Description  Aggregates candles, indicators, open interest and funding for all configured coins. Failed coins are returned as degraded records.
// @Tags         market
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/market [get]
func (h *Handler) GetAllMarketData(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-all-market-data")
	defer span.End()

	c.JSON(http.StatusOK, gin.H{"instruments": h.marketService.GetAllData(ctx)})
}

// GetMarketData godoc
// @Summary      Get one instrument
// @Description  Returns the assembled record for a coin (BTC) or symbol (BTCUSDT)
// @Tags         market
// @Produce      json
// @Param        coin  path  string  true  "Coin or symbol"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/market/{coin} [get]
func (h *Handler) GetMarketData(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-market-data")
	defer span.End()

	coin := domain.CoinFor(c.Param("coin"))
	span.SetAttributes(attribute.String("coin", coin))

	record, err := h.marketService.GetCompleteData(ctx, coin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetMarketPrompt godoc
// @Summary      Get the prompt text for one instrument
// @Tags         market
// @Produce      plain
// @Param        coin  path  string  true  "Coin or symbol"
// @Success      200  {string}  string
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/market/{coin}/prompt [get]
func (h *Handler) GetMarketPrompt(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-market-prompt")
	defer span.End()

	coin := domain.CoinFor(c.Param("coin"))
	record, err := h.marketService.GetCompleteData(ctx, coin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, service.FormatForPrompt(record))
}

// GetAllMarketPrompt godoc
// @Summary      Get the combined prompt text for every configured instrument
// @Tags         market
// @Produce      plain
// @Success      200  {string}  string
// @Failure      503  {object}  map[string]string
// @Router       /api/prompt [get]
func (h *Handler) GetAllMarketPrompt(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-all-market-prompt")
	defer span.End()

	c.String(http.StatusOK, h.marketService.FormatAllForPrompt(h.marketService.GetAllData(ctx)))
}

// GetIndicators godoc
// @Summary      Get the indicator bundle for one timeframe
// @Tags         market
// @Produce      json
// @Param        coin      path   string  true   "Coin or symbol"
// @Param        interval  query  string  false  "Timeframe (1m, 3m, 5m, 15m, 30m, 1h, 2h, 4h, 6h, 12h, 1d)"  default(5m)
// @Param        limit     query  int     false  "Candles to fetch (1-1000)"  default(200)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/indicators/{coin} [get]
func (h *Handler) GetIndicators(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-indicators")
	defer span.End()

	interval, limit, ok := parseIntervalAndLimit(c)
	if !ok {
		return
	}
	symbol := domain.SymbolFor(c.Param("coin"))
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"interval":   interval,
		"indicators": h.marketService.GetTechnicalIndicators(ctx, symbol, interval, limit),
	})
}

// GetCandles godoc
// @Summary      Get cleaned candles
// @Description  Returns candles sorted ascending with duplicates and invalid rows removed
// @Tags         market
// @Produce      json
// @Param        coin      path   string  true   "Coin or symbol"
// @Param        interval  query  string  false  "Timeframe"  default(5m)
// @Param        limit     query  int     false  "Number of candles (1-1000)"  default(200)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/candles/{coin} [get]
func (h *Handler) GetCandles(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-candles")
	defer span.End()

	interval, limit, ok := parseIntervalAndLimit(c)
	if !ok {
		return
	}
	coin := domain.CoinFor(c.Param("coin"))
	span.SetAttributes(attribute.String("coin", coin), attribute.String("interval", interval))

	candles := h.marketService.GetCandles(ctx, coin, interval, limit)
	c.JSON(http.StatusOK, gin.H{
		"symbol":   domain.SymbolFor(coin),
		"interval": interval,
		"candles":  candles,
	})
}

// GetLiveData godoc
// @Summary      Get the latest streamed kline and ticker
// @Tags         market
// @Produce      json
// @Param        coin  path  string  true  "Coin or symbol"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/live/{coin} [get]
func (h *Handler) GetLiveData(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	symbol := domain.SymbolFor(c.Param("coin"))
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"live":   h.marketService.GetLiveData(symbol),
	})
}

// GetChart godoc
// @Summary      Render a candle chart
// @Description  PNG of the trailing candles with EMA20/EMA50 overlays and one lower panel
// @Tags         market
// @Produce      png
// @Param        coin      path   string  true   "Coin or symbol"
// @Param        interval  query  string  false  "Timeframe"  default(5m)
// @Param        limit     query  int     false  "Candles to fetch (1-1000)"  default(200)
// @Param        panel     query  string  false  "Lower panel (rsi, macd, volume)"  default(rsi)
// @Success      200  {file}    binary
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/chart/{coin} [get]
func (h *Handler) GetChart(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-chart")
	defer span.End()

	interval, limit, ok := parseIntervalAndLimit(c)
	if !ok {
		return
	}
	panel, err := chart.ParsePanel(c.Query("panel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coin := domain.CoinFor(c.Param("coin"))
	span.SetAttributes(attribute.String("coin", coin), attribute.String("interval", interval), attribute.String("panel", panel))

	img, err := h.charts.RenderCandleChart(h.marketService.GetCandles(ctx, coin, interval, limit), panel)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, img.MimeType, img.Bytes)
}

func parseIntervalAndLimit(c *gin.Context) (string, int, bool) {
	interval := strings.TrimSpace(c.DefaultQuery("interval", defaultInterval))
	if !domain.IsSupportedTimeframe(interval) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                "unsupported interval: " + interval,
			"supported_timeframes": domain.SupportedTimeframes,
		})
		return "", 0, false
	}

	limit := 200
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > repository.MaxCandleLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return "", 0, false
		}
		limit = n
	}
	return interval, limit, true
}
