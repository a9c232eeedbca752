package mcp

import (
	"context"

	"alpha-arena/internal/domain"
)

// MarketReader exposes the aggregation pipeline.
type MarketReader interface {
	Coins() []string
	Timeframes() []string
	GetCandles(ctx context.Context, coin, interval string, limit int) []*domain.Candle
	GetTechnicalIndicators(ctx context.Context, symbol, interval string, limit int) *domain.IndicatorSet
	GetCompleteData(ctx context.Context, coin string) (*domain.InstrumentRecord, error)
	GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord
	GetLiveData(symbol string) domain.LiveSnapshot
	FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string
}

type AccountReader interface {
	GetAccountInfo(ctx context.Context) domain.AccountSnapshot
}

type DecisionReader interface {
	Latest() []domain.ModelDecision
}
