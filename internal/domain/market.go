package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// IndicatorSet is the per-timeframe indicator bundle. Current values whose
// indicator is still warming up are reported as 0.
type IndicatorSet struct {
	CurrentPrice  float64   `json:"current_price"`
	EMA20         float64   `json:"ema20_current"`
	EMA50         float64   `json:"ema50_current"`
	MACD          float64   `json:"macd_current"`
	MACDSignal    float64   `json:"macd_signal_current"`
	MACDHist      float64   `json:"macd_hist_current"`
	RSI14         float64   `json:"rsi14_current"`
	ATR14         float64   `json:"atr14_current"`
	ATR3          float64   `json:"atr3_current"`
	VolumeCurrent float64   `json:"volume_current"`
	VolumeAvg     float64   `json:"volume_avg"`
	VolumeRatio   float64   `json:"volume_ratio"`
	Prices        []float64 `json:"prices"`
	EMA20Series   []float64 `json:"ema20_series"`
	MACDSeries    []float64 `json:"macd_series"`
	RSI14Series   []float64 `json:"rsi14_series"`
}

type OpenInterestSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type OpenInterestSnapshot struct {
	Latest       float64 `json:"latest"`
	Average      float64 `json:"average"`
	DeviationPct float64 `json:"deviation_pct"`
}

type FundingRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
}

type FundingRateSnapshot struct {
	CurrentRate     float64 `json:"current_rate"`
	PersistenceBars int     `json:"persistence_bars"`
}

// LiveCandle is the in-progress kline most recently pushed by the stream.
type LiveCandle struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Closed    bool      `json:"closed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LiveTick is the most recent 24h ticker pushed by the stream.
type LiveTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	ChangePct float64   `json:"change_pct"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LiveSnapshot struct {
	Kline  *LiveCandle `json:"kline,omitempty"`
	Ticker *LiveTick   `json:"ticker,omitempty"`
}

func (s LiveSnapshot) Empty() bool {
	return s.Kline == nil && s.Ticker == nil
}

// InstrumentRecord is the assembled per-instrument view handed to the
// decision consumer. Indicators holds one entry per configured timeframe; a
// nil entry means no candles were available.
type InstrumentRecord struct {
	Coin         string                   `json:"coin"`
	Symbol       string                   `json:"symbol"`
	Timestamp    time.Time                `json:"timestamp"`
	Timeframes   []string                 `json:"-"`
	Indicators   map[string]*IndicatorSet `json:"-"`
	OpenInterest OpenInterestSnapshot     `json:"open_interest"`
	FundingRate  FundingRateSnapshot      `json:"funding_rate"`
}

// NewDegradedRecord is the record returned for an instrument whose pipeline
// could not run: every timeframe empty and zero-valued derivative metrics.
func NewDegradedRecord(coin string, timeframes []string, ts time.Time) *InstrumentRecord {
	rec := &InstrumentRecord{
		Coin:       coin,
		Symbol:     SymbolFor(coin),
		Timestamp:  ts.UTC(),
		Timeframes: append([]string(nil), timeframes...),
		Indicators: make(map[string]*IndicatorSet, len(timeframes)),
	}
	for _, tf := range timeframes {
		rec.Indicators[tf] = nil
	}
	return rec
}

// IndicatorsFor returns the bundle for a timeframe, nil when empty.
func (r *InstrumentRecord) IndicatorsFor(interval string) *IndicatorSet {
	if r == nil || r.Indicators == nil {
		return nil
	}
	return r.Indicators[interval]
}

// Degraded reports whether no timeframe produced indicators.
func (r *InstrumentRecord) Degraded() bool {
	if r == nil {
		return true
	}
	for _, set := range r.Indicators {
		if set != nil {
			return false
		}
	}
	return true
}

func IndicatorKey(interval string) string {
	return interval + "_indicators"
}

// MarshalJSON flattens the timeframe bundles into <timeframe>_indicators keys
// in configured order; an empty bundle is written as {}.
func (r InstrumentRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if err := write("coin", r.Coin); err != nil {
		return nil, err
	}
	if err := write("symbol", r.Symbol); err != nil {
		return nil, err
	}
	if err := write("timestamp", r.Timestamp); err != nil {
		return nil, err
	}
	for _, tf := range r.Timeframes {
		var v any = struct{}{}
		if set := r.Indicators[tf]; set != nil {
			v = set
		}
		if err := write(IndicatorKey(tf), v); err != nil {
			return nil, err
		}
	}
	if err := write("open_interest", r.OpenInterest); err != nil {
		return nil, err
	}
	if err := write("funding_rate", r.FundingRate); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AccountSnapshot mirrors the exchange balances. Error is set instead of
// Balances when the account cannot be read.
type AccountSnapshot struct {
	Balances       map[string]float64 `json:"balances,omitempty"`
	TotalValueUSDT float64            `json:"total_value_usdt"`
	UpdateTime     time.Time          `json:"update_time"`
	Error          string             `json:"error,omitempty"`
}
