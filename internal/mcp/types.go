package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"alpha-arena/internal/domain"
)

const (
	defaultCandleLimit = 200
	maxCandleLimit     = 1000
	defaultInterval    = "5m"
)

type coinInput struct {
	Coin string `json:"coin" jsonschema:"coin or exchange symbol (e.g. BTC, ETHUSDT)"`
}

type emptyInput struct{}

type marketSnapshotOutput struct {
	Coin     string         `json:"coin"`
	Degraded bool           `json:"degraded"`
	Record   map[string]any `json:"record"`
}

type marketPromptOutput struct {
	Coin   string `json:"coin"`
	Prompt string `json:"prompt"`
}

type marketAllPromptOutput struct {
	Coins  []string `json:"coins"`
	Prompt string   `json:"prompt"`
}

type seriesInput struct {
	Coin     string `json:"coin" jsonschema:"coin or exchange symbol (e.g. BTC, ETHUSDT)"`
	Interval string `json:"interval,omitempty" jsonschema:"timeframe: 1m, 3m, 5m, 15m, 30m, 1h, 2h, 4h, 6h, 12h, 1d (default 5m)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of candles to fetch, max 1000 (default 200)"`
}

type chartInput struct {
	Coin     string `json:"coin" jsonschema:"coin or exchange symbol (e.g. BTC, ETHUSDT)"`
	Interval string `json:"interval,omitempty" jsonschema:"timeframe (default 5m)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of candles to fetch, max 1000 (default 200)"`
	Panel    string `json:"panel,omitempty" jsonschema:"lower panel: rsi, macd or volume (default rsi)"`
}

type indicatorsOutput struct {
	Symbol     string               `json:"symbol"`
	Interval   string               `json:"interval"`
	Indicators *domain.IndicatorSet `json:"indicators"`
}

type candlesListOutput struct {
	Symbol   string           `json:"symbol"`
	Interval string           `json:"interval"`
	Candles  []*domain.Candle `json:"candles"`
}

type liveOutput struct {
	Symbol string              `json:"symbol"`
	Live   domain.LiveSnapshot `json:"live"`
}

type accountOutput struct {
	Account domain.AccountSnapshot `json:"account"`
}

type decisionsOutput struct {
	Decisions []domain.ModelDecision `json:"decisions"`
	Agree     bool                   `json:"agree"`
}

type timeframesOutput struct {
	Supported  []string `json:"supported"`
	Configured []string `json:"configured"`
}

func normalizeCoin(coin string) (string, error) {
	coin = domain.CoinFor(coin)
	if coin == "" {
		return "", fmt.Errorf("coin is required")
	}
	return coin, nil
}

func normalizeInterval(interval string) (string, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return defaultInterval, nil
	}
	if !domain.IsSupportedTimeframe(interval) {
		return "", fmt.Errorf("unsupported interval: %s", interval)
	}
	return interval, nil
}

func normalizeCandleLimit(limit int) int {
	if limit <= 0 {
		return defaultCandleLimit
	}
	if limit > maxCandleLimit {
		return maxCandleLimit
	}
	return limit
}

func normalizeSeries(in seriesInput) (string, string, int, error) {
	coin, err := normalizeCoin(in.Coin)
	if err != nil {
		return "", "", 0, err
	}
	interval, err := normalizeInterval(in.Interval)
	if err != nil {
		return "", "", 0, err
	}
	return coin, interval, normalizeCandleLimit(in.Limit), nil
}

// recordToMap flattens a record through its JSON form so per-timeframe keys
// survive structured output.
func recordToMap(record *domain.InstrumentRecord) (map[string]any, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
