package indicator

import (
	"math"
	"testing"
)

func TestComputeEmptyReturnsNil(t *testing.T) {
	if got := Compute(nil, DefaultOptions()); got != nil {
		t.Fatalf("expected nil bundle, got %+v", got)
	}
	if got := ComputeFromRows(nil, DefaultOptions()); got != nil {
		t.Fatalf("expected nil bundle from rows, got %+v", got)
	}
}

func TestComputeFullBundle(t *testing.T) {
	candles := randomWalk(200, 3)
	set := Compute(candles, DefaultOptions())
	if set == nil {
		t.Fatal("expected bundle")
	}

	if set.CurrentPrice != candles[len(candles)-1].Close {
		t.Fatalf("expected current price %f, got %f", candles[len(candles)-1].Close, set.CurrentPrice)
	}
	if len(set.Prices) != SeriesLength || len(set.EMA20Series) != SeriesLength ||
		len(set.MACDSeries) != SeriesLength || len(set.RSI14Series) != SeriesLength {
		t.Fatalf("expected %d-value series, got %d/%d/%d/%d", SeriesLength,
			len(set.Prices), len(set.EMA20Series), len(set.MACDSeries), len(set.RSI14Series))
	}
	if set.RSI14 < 0 || set.RSI14 > 100 {
		t.Fatalf("RSI out of range: %f", set.RSI14)
	}
	if set.ATR14 <= 0 || set.ATR3 <= 0 {
		t.Fatalf("expected positive ATR, got %f / %f", set.ATR14, set.ATR3)
	}
	if math.Abs(set.MACDHist-(set.MACD-set.MACDSignal)) > 1e-5 {
		t.Fatalf("hist %f != macd %f - signal %f", set.MACDHist, set.MACD, set.MACDSignal)
	}
	if set.EMA20 == 0 || set.EMA50 == 0 {
		t.Fatalf("expected defined EMAs, got %f / %f", set.EMA20, set.EMA50)
	}
	if set.VolumeAvg <= 0 || set.VolumeRatio <= 0 {
		t.Fatalf("expected positive volume stats, got avg=%f ratio=%f", set.VolumeAvg, set.VolumeRatio)
	}
}

func TestComputeShortHistoryReportsWarmupAsZero(t *testing.T) {
	candles := randomWalk(10, 5)
	set := Compute(candles, DefaultOptions())
	if set == nil {
		t.Fatal("expected bundle for non-empty input")
	}
	if set.EMA20 != 0 || set.EMA50 != 0 || set.MACD != 0 || set.RSI14 != 0 || set.ATR14 != 0 {
		t.Fatalf("expected warm-up indicators to be zero: %+v", set)
	}
	if set.ATR3 <= 0 {
		t.Fatalf("expected ATR3 to be defined, got %f", set.ATR3)
	}
	if len(set.Prices) != 10 {
		t.Fatalf("expected 10 prices, got %d", len(set.Prices))
	}
	if len(set.EMA20Series) != 0 || len(set.RSI14Series) != 0 {
		t.Fatalf("expected no defined EMA/RSI values, got %v / %v", set.EMA20Series, set.RSI14Series)
	}
	for _, v := range set.MACDSeries {
		if math.IsNaN(v) {
			t.Fatal("series must not contain NaN")
		}
	}
}
