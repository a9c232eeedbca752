package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"alpha-arena/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type stubMarket struct {
	mu           sync.Mutex
	lastCoin     string
	lastSymbol   string
	lastLimit    int
	lastInterval string
	candles      map[string][]*domain.Candle
}

func (s *stubMarket) Coins() []string      { return []string{"BTC", "ETH"} }
func (s *stubMarket) Timeframes() []string { return []string{"5m", "4h"} }

func (s *stubMarket) GetCandles(ctx context.Context, coin, interval string, limit int) []*domain.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCoin, s.lastInterval, s.lastLimit = coin, interval, limit
	rows := s.candles[domain.SymbolFor(coin)+":"+interval]
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return append([]*domain.Candle(nil), rows...)
}

func (s *stubMarket) GetTechnicalIndicators(ctx context.Context, symbol, interval string, limit int) *domain.IndicatorSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSymbol, s.lastInterval, s.lastLimit = symbol, interval, limit
	if symbol != "BTCUSDT" {
		return nil
	}
	return &domain.IndicatorSet{CurrentPrice: 50500, RSI14: 55, Prices: []float64{50400, 50500}}
}

func (s *stubMarket) GetCompleteData(ctx context.Context, coin string) (*domain.InstrumentRecord, error) {
	if coin == "FAIL" {
		return nil, fmt.Errorf("get complete data for %s: %w", coin, context.Canceled)
	}
	rec := domain.NewDegradedRecord(coin, s.Timeframes(), time.Unix(1640000000, 0))
	if coin == "BTC" {
		rec.Indicators["5m"] = &domain.IndicatorSet{CurrentPrice: 50500}
		rec.FundingRate = domain.FundingRateSnapshot{CurrentRate: 0.0001, PersistenceBars: 3}
	}
	return rec, nil
}

func (s *stubMarket) GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord {
	out := make(map[string]*domain.InstrumentRecord)
	for _, coin := range s.Coins() {
		rec, _ := s.GetCompleteData(ctx, coin)
		out[coin] = rec
	}
	return out
}

func (s *stubMarket) GetLiveData(symbol string) domain.LiveSnapshot {
	if symbol != "BTCUSDT" {
		return domain.LiveSnapshot{}
	}
	return domain.LiveSnapshot{Ticker: &domain.LiveTick{Symbol: "BTCUSDT", Price: 50500}}
}

func (s *stubMarket) FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string {
	var out string
	for _, coin := range s.Coins() {
		if rec := records[coin]; rec != nil {
			out += "=== " + rec.Coin + " ===\n"
		}
	}
	return out
}

type stubAccount struct{}

func (stubAccount) GetAccountInfo(ctx context.Context) domain.AccountSnapshot {
	return domain.AccountSnapshot{Balances: map[string]float64{"USDT": 10}, TotalValueUSDT: 10}
}

type stubDecisions struct{}

func (stubDecisions) Latest() []domain.ModelDecision {
	return []domain.ModelDecision{
		{Model: "qwen3-max", Decision: domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionBuy, Confidence: 0.7}},
		{Model: "deepseek-v3.1", Decision: domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionBuy, Confidence: 0.6}},
	}
}

func testServer() (*sdkmcp.Server, *stubMarket) {
	market := &stubMarket{
		candles: map[string][]*domain.Candle{
			"BTCUSDT:1h": {{Symbol: "BTCUSDT", Interval: "1h", Open: 1, High: 2, Low: 1, Close: 2, Volume: 3, OpenTime: time.Unix(0, 0).UTC()}},
		},
	}
	srv := NewServer(nil, market, stubAccount{}, stubDecisions{}, ServerConfig{RequestTimeout: time.Second})
	return srv, market
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}

func decodeToolJSON(result *sdkmcp.CallToolResult, out any) error {
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			return json.Unmarshal([]byte(text.Text), out)
		}
	}
	return fmt.Errorf("no text content in tool result")
}
