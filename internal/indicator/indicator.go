// Package indicator holds the pure technical-indicator math. Every series
// function is positional and length preserving: index 0 is the oldest sample
// and positions still in warm-up hold NaN.
package indicator

import (
	"math"
	"sort"

	"alpha-arena/internal/domain"
)

const (
	EMAFastPeriod    = 20
	EMASlowPeriod    = 50
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	RSIPeriod        = 14
	ATRPeriod        = 14
	ATRShortPeriod   = 3
	VolumeWindow     = 20
	SeriesLength     = 20
)

// EMA seeds with the simple average of the first period defined samples and
// then applies alpha = 2/(period+1). Leading NaNs are skipped.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}

	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	seedIdx := start + period - 1
	out[seedIdx] = sum / float64(period)

	alpha := 2.0 / (float64(period) + 1.0)
	for i := seedIdx + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the line, signal and histogram series for the standard 12/26/9 periods.
func MACD(values []float64) (line, signal, hist []float64) {
	return MACDWith(values, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
}

func MACDWith(values []float64, fast, slow, signalPeriod int) (line, signal, hist []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	line = make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signal = EMA(line, signalPeriod)
	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// RSI uses Wilder smoothing. The first defined value sits at index period.
func RSI(closes []float64, period int) []float64 {
	series := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return series
	}

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}

	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	return math.Min(100, math.Max(0, rsi))
}

// TrueRange has no previous close for the first bar, so it degrades to high-low there.
func TrueRange(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prevClose := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the Wilder-smoothed true range, seeded by the mean of the first period ranges.
func ATR(candles []domain.Candle, period int) []float64 {
	out := nanSeries(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}

	tr := TrueRange(candles)
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// VolumeStats returns the latest volume, the mean over the trailing window
// (including the latest bar) and their ratio. The ratio is 0 when the average is 0.
func VolumeStats(candles []domain.Candle, window int) (current, average, ratio float64) {
	if len(candles) == 0 {
		return 0, 0, 0
	}
	current = candles[len(candles)-1].Volume
	if window <= 0 || window > len(candles) {
		window = len(candles)
	}
	for _, c := range candles[len(candles)-window:] {
		average += c.Volume
	}
	average /= float64(window)
	if average > 0 {
		ratio = current / average
	}
	return current, average, ratio
}

// Normalize sorts candles ascending by open time and drops nil rows and
// duplicate timestamps, keeping the last occurrence.
func Normalize(in []*domain.Candle) []domain.Candle {
	out := make([]domain.Candle, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})

	deduped := out[:0]
	for _, c := range out {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime.Equal(c.OpenTime) {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

func Closes(candles []domain.Candle) []float64 {
	values := make([]float64, len(candles))
	for i := range candles {
		values[i] = candles[i].Close
	}
	return values
}

// Last returns the final element of a series, or 0 when it is empty or still warming up.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Tail returns up to n trailing defined values, oldest first.
func Tail(series []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	start := len(series) - n
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, len(series)-start)
	for _, v := range series[start:] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
