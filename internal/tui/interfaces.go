package tui

import (
	"context"

	"alpha-arena/internal/domain"
)

// MarketQuerier provides assembled instrument records and live ticks.
type MarketQuerier interface {
	GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord
	GetLiveData(symbol string) domain.LiveSnapshot
	FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string
}

// AdvisorQuerier is one LLM the chat screen can address.
type AdvisorQuerier interface {
	Name() string
	Call(ctx context.Context, prompt string) string
}

// DecisionQuerier exposes the latest decision cycle.
type DecisionQuerier interface {
	Latest() []domain.ModelDecision
}

// Services bundles what a session reads. Any field may be nil; the screens
// render an "unavailable" notice instead.
type Services struct {
	Market    MarketQuerier
	Advisors  []AdvisorQuerier
	Decisions DecisionQuerier
	Username  string
}
