package indicator

import "alpha-arena/internal/domain"

type Options struct {
	VolumeWindow int
	SeriesLength int
}

func DefaultOptions() Options {
	return Options{VolumeWindow: VolumeWindow, SeriesLength: SeriesLength}
}

// Compute builds the full indicator bundle for an ascending candle sequence.
// It returns nil for an empty sequence so callers never see a partial bundle.
func Compute(candles []domain.Candle, opts Options) *domain.IndicatorSet {
	if len(candles) == 0 {
		return nil
	}
	if opts.VolumeWindow <= 0 {
		opts.VolumeWindow = VolumeWindow
	}
	if opts.SeriesLength <= 0 {
		opts.SeriesLength = SeriesLength
	}

	closes := Closes(candles)
	ema20 := EMA(closes, EMAFastPeriod)
	ema50 := EMA(closes, EMASlowPeriod)
	macdLine, macdSignal, macdHist := MACD(closes)
	rsi14 := RSI(closes, RSIPeriod)
	atr14 := ATR(candles, ATRPeriod)
	atr3 := ATR(candles, ATRShortPeriod)
	volCurrent, volAvg, volRatio := VolumeStats(candles, opts.VolumeWindow)

	return &domain.IndicatorSet{
		CurrentPrice:  closes[len(closes)-1],
		EMA20:         Last(ema20),
		EMA50:         Last(ema50),
		MACD:          Last(macdLine),
		MACDSignal:    Last(macdSignal),
		MACDHist:      Last(macdHist),
		RSI14:         Last(rsi14),
		ATR14:         Last(atr14),
		ATR3:          Last(atr3),
		VolumeCurrent: volCurrent,
		VolumeAvg:     volAvg,
		VolumeRatio:   volRatio,
		Prices:        Tail(closes, opts.SeriesLength),
		EMA20Series:   Tail(ema20, opts.SeriesLength),
		MACDSeries:    Tail(macdLine, opts.SeriesLength),
		RSI14Series:   Tail(rsi14, opts.SeriesLength),
	}
}

// ComputeFromRows normalises repository rows before computing.
func ComputeFromRows(rows []*domain.Candle, opts Options) *domain.IndicatorSet {
	return Compute(Normalize(rows), opts)
}
