package handler

import (
	"context"
	"net/http"

	"alpha-arena/internal/chart"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type DecisionReader interface {
	Latest() []domain.ModelDecision
}

type Handler struct {
	tracer         trace.Tracer
	exchange       Pinger
	marketService  *service.MarketDataService
	accountService *service.AccountService
	decisions      DecisionReader
	charts         *chart.Renderer
}

func New(
	tracer trace.Tracer,
	exchange Pinger,
	marketService *service.MarketDataService,
	accountService *service.AccountService,
	decisions DecisionReader,
) *Handler {
	return &Handler{
		tracer:         tracer,
		exchange:       exchange,
		marketService:  marketService,
		accountService: accountService,
		decisions:      decisions,
		charts:         chart.NewRenderer(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/market", h.GetAllMarketData)
	r.GET("/api/market/:coin", h.GetMarketData)
	r.GET("/api/market/:coin/prompt", h.GetMarketPrompt)
	r.GET("/api/prompt", h.GetAllMarketPrompt)
	r.GET("/api/indicators/:coin", h.GetIndicators)
	r.GET("/api/candles/:coin", h.GetCandles)
	r.GET("/api/live/:coin", h.GetLiveData)
	r.GET("/api/chart/:coin", h.GetChart)
	r.GET("/api/account", h.GetAccount)
	r.GET("/api/decisions", h.GetDecisions)
}

// Health godoc
// @Summary      Health check
// @Description  Reports service health and exchange reachability
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.health")
	defer span.End()

	if h.exchange != nil {
		if err := h.exchange.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
