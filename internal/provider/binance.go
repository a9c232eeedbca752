package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"alpha-arena/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSpotURL       = "https://api.binance.com"
	defaultFuturesURL    = "https://fapi.binance.com"
	defaultHTTPTimeout   = 10 * time.Second
	defaultOIPeriod      = "5m"
	defaultRecvWindow    = 5000
	maxKlinesPerRequest  = 1000
	maxOIHistoryRequest  = 500
	maxFundingRateResult = 1000
)

type BinanceConfig struct {
	SpotURL            string
	FuturesURL         string
	APIKey             string
	APISecret          string
	Timeout            time.Duration
	OpenInterestPeriod string
}

// APIError is a non-2xx response from Binance. Code is the exchange error
// code when the body carried one.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("binance api error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance api error (status %d): %s", e.StatusCode, e.Message)
}

// BinanceProvider talks to the public spot and USDⓈ-M futures REST APIs and,
// when credentials are present, the signed spot account endpoint.
type BinanceProvider struct {
	tracer     trace.Tracer
	cfg        BinanceConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewBinanceProvider(tracer trace.Tracer, cfg BinanceConfig) *BinanceProvider {
	if cfg.SpotURL == "" {
		cfg.SpotURL = defaultSpotURL
	}
	if cfg.FuturesURL == "" {
		cfg.FuturesURL = defaultFuturesURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.OpenInterestPeriod == "" {
		cfg.OpenInterestPeriod = defaultOIPeriod
	}
	cfg.SpotURL = strings.TrimRight(cfg.SpotURL, "/")
	cfg.FuturesURL = strings.TrimRight(cfg.FuturesURL, "/")

	return &BinanceProvider{
		tracer:     tracer,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

func (p *BinanceProvider) Authenticated() bool {
	return p.cfg.APIKey != "" && p.cfg.APISecret != ""
}

func (p *BinanceProvider) Ping(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "binance.ping")
	defer span.End()

	var out struct{}
	return p.getJSON(ctx, p.cfg.SpotURL+"/api/v3/ping", nil, false, &out)
}

func (p *BinanceProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-candles")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	limit = clampLimit(limit, maxKlinesPerRequest)
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := p.getJSON(ctx, p.cfg.SpotURL+"/api/v3/klines", params, false, &raw); err != nil {
		return nil, err
	}

	candles := make([]*domain.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline for %s %s: %w", symbol, interval, err)
		}
		c.Symbol = symbol
		c.Interval = interval
		candles = append(candles, c)
	}
	return candles, nil
}

func (p *BinanceProvider) FetchOpenInterestHistory(ctx context.Context, symbol string, limit int) ([]domain.OpenInterestSample, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-open-interest-history")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("period", p.cfg.OpenInterestPeriod)
	params.Set("limit", strconv.Itoa(clampLimit(limit, maxOIHistoryRequest)))

	var raw []struct {
		SumOpenInterest string `json:"sumOpenInterest"`
		Timestamp       int64  `json:"timestamp"`
	}
	if err := p.getJSON(ctx, p.cfg.FuturesURL+"/futures/data/openInterestHist", params, false, &raw); err != nil {
		return nil, err
	}

	samples := make([]domain.OpenInterestSample, 0, len(raw))
	for _, item := range raw {
		v, err := strconv.ParseFloat(item.SumOpenInterest, 64)
		if err != nil {
			continue
		}
		samples = append(samples, domain.OpenInterestSample{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Value:     v,
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples, nil
}

func (p *BinanceProvider) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingRateSample, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-funding-rate-history")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(clampLimit(limit, maxFundingRateResult)))

	var raw []struct {
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
	}
	if err := p.getJSON(ctx, p.cfg.FuturesURL+"/fapi/v1/fundingRate", params, false, &raw); err != nil {
		return nil, err
	}

	samples := make([]domain.FundingRateSample, 0, len(raw))
	for _, item := range raw {
		rate, err := strconv.ParseFloat(item.FundingRate, 64)
		if err != nil {
			continue
		}
		samples = append(samples, domain.FundingRateSample{
			Timestamp: time.UnixMilli(item.FundingTime).UTC(),
			Rate:      rate,
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples, nil
}

// FetchTickerPrices returns the last price of every spot symbol.
func (p *BinanceProvider) FetchTickerPrices(ctx context.Context) (map[string]float64, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-ticker-prices")
	defer span.End()

	var raw []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := p.getJSON(ctx, p.cfg.SpotURL+"/api/v3/ticker/price", nil, false, &raw); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(raw))
	for _, item := range raw {
		v, err := strconv.ParseFloat(item.Price, 64)
		if err != nil {
			continue
		}
		prices[item.Symbol] = v
	}
	return prices, nil
}

// FetchAccountBalances returns free+locked per asset, skipping empty balances.
func (p *BinanceProvider) FetchAccountBalances(ctx context.Context) (map[string]float64, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-account-balances")
	defer span.End()

	if !p.Authenticated() {
		return nil, fmt.Errorf("binance credentials not configured")
	}

	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := p.getJSON(ctx, p.cfg.SpotURL+"/api/v3/account", url.Values{}, true, &raw); err != nil {
		return nil, err
	}

	balances := make(map[string]float64)
	for _, b := range raw.Balances {
		free, errFree := strconv.ParseFloat(b.Free, 64)
		locked, errLocked := strconv.ParseFloat(b.Locked, 64)
		if errFree != nil || errLocked != nil {
			continue
		}
		if total := free + locked; total > 0 {
			balances[b.Asset] = total
		}
	}
	return balances, nil
}

func (p *BinanceProvider) getJSON(ctx context.Context, endpoint string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(p.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(defaultRecvWindow))
	}

	query := params.Encode()
	if signed {
		// signature must be the trailing parameter
		query += "&signature=" + p.sign(query)
	}
	target := endpoint
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read binance response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode binance response: %w", err)
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of the encoded query keyed by the API secret.
func (p *BinanceProvider) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseKlineRow(row []any) (*domain.Candle, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("kline row has %d fields", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid open time %v", row[0])
	}
	values := make([]float64, 5)
	for i := range values {
		v, err := parseFloat(row[i+1])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &domain.Candle{
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

func parseFloat(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseFloat(val, 64)
	case float64:
		return val, nil
	case json.Number:
		return val.Float64()
	default:
		return 0, fmt.Errorf("unsupported numeric value %v (%T)", v, v)
	}
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
