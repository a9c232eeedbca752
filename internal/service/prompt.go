package service

import (
	"fmt"
	"strings"
	"time"

	"alpha-arena/internal/domain"
)

// FormatForPrompt renders a record as plain text for the decision model. The
// output depends only on the record.
func FormatForPrompt(record *domain.InstrumentRecord) string {
	if record == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== %s (%s) @ %s ===\n", record.Coin, record.Symbol, record.Timestamp.UTC().Format(time.RFC3339)))

	for _, tf := range record.Timeframes {
		set := record.IndicatorsFor(tf)
		if set == nil {
			sb.WriteString(fmt.Sprintf("[%s] no data\n", tf))
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] current_price = %.4f, EMA20 = %.4f, EMA50 = %.4f, MACD = %.4f, MACD_signal = %.4f, MACD_hist = %.4f\n",
			tf, set.CurrentPrice, set.EMA20, set.EMA50, set.MACD, set.MACDSignal, set.MACDHist))
		sb.WriteString(fmt.Sprintf("[%s] RSI14 = %.2f, ATR14 = %.4f, ATR3 = %.4f, volume = %.4f, volume_avg = %.4f, volume_ratio = %.2f\n",
			tf, set.RSI14, set.ATR14, set.ATR3, set.VolumeCurrent, set.VolumeAvg, set.VolumeRatio))
		if len(set.Prices) > 0 {
			sb.WriteString(fmt.Sprintf("[%s] prices (oldest -> latest): %s\n", tf, formatFloatSlice(set.Prices)))
		}
		if len(set.EMA20Series) > 0 {
			sb.WriteString(fmt.Sprintf("[%s] EMA20 series: %s\n", tf, formatFloatSlice(set.EMA20Series)))
		}
		if len(set.MACDSeries) > 0 {
			sb.WriteString(fmt.Sprintf("[%s] MACD series: %s\n", tf, formatFloatSlice(set.MACDSeries)))
		}
		if len(set.RSI14Series) > 0 {
			sb.WriteString(fmt.Sprintf("[%s] RSI14 series: %s\n", tf, formatFloatSlice(set.RSI14Series)))
		}
	}

	oi := record.OpenInterest
	sb.WriteString(fmt.Sprintf("Open Interest: latest = %.2f, average = %.2f, deviation = %.2f%%\n",
		oi.Latest, oi.Average, oi.DeviationPct))
	fr := record.FundingRate
	sb.WriteString(fmt.Sprintf("Funding Rate: current = %.6f, persistence_bars = %d\n",
		fr.CurrentRate, fr.PersistenceBars))

	return sb.String()
}

func formatFloatSlice(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
