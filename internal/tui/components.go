package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"alpha-arena/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

// marketRow is one dashboard line distilled from an InstrumentRecord and the
// live ticker for its symbol.
type marketRow struct {
	Coin      string
	Symbol    string
	Price     float64
	ChangePct float64
	HasChange bool
	Volume    float64
	Interval  string
	RSI       float64
	MACDHist  float64
	OIDevPct  float64
	Funding   float64
	Degraded  bool
}

// buildRows orders records by coin. Price and 24h change come from the live
// ticker when one is cached, otherwise from the highest timeframe bundle.
func buildRows(records map[string]*domain.InstrumentRecord, live func(symbol string) domain.LiveSnapshot) []marketRow {
	rows := make([]marketRow, 0, len(records))
	for coin, rec := range records {
		if rec == nil {
			continue
		}
		row := marketRow{
			Coin:     coin,
			Symbol:   rec.Symbol,
			OIDevPct: rec.OpenInterest.DeviationPct,
			Funding:  rec.FundingRate.CurrentRate,
			Degraded: rec.Degraded(),
		}
		if interval, set := primarySet(rec); set != nil {
			row.Interval = interval
			row.Price = set.CurrentPrice
			row.RSI = set.RSI14
			row.MACDHist = set.MACDHist
			row.Volume = set.VolumeCurrent
		}
		if live != nil {
			if tick := live(rec.Symbol).Ticker; tick != nil {
				row.Price = tick.Price
				row.ChangePct = tick.ChangePct
				row.HasChange = true
				row.Volume = tick.Volume
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Coin < rows[j].Coin })
	return rows
}

// primarySet returns the last non-empty bundle in configured timeframe order.
func primarySet(rec *domain.InstrumentRecord) (string, *domain.IndicatorSet) {
	for i := len(rec.Timeframes) - 1; i >= 0; i-- {
		tf := rec.Timeframes[i]
		if set := rec.IndicatorsFor(tf); set != nil {
			return tf, set
		}
	}
	return "", nil
}

// FormatMarketRow renders a row as a single line.
func FormatMarketRow(r marketRow) string {
	if r.Degraded && r.Price == 0 {
		return fmt.Sprintf("%-5s %12s  %s", r.Coin, "-", SubtextStyle.Render("no data"))
	}

	change := PriceFlatStyle.Render(fmt.Sprintf("%7s", "-"))
	if r.HasChange {
		style := PriceFlatStyle
		if r.ChangePct > 0 {
			style = PriceUpStyle
		} else if r.ChangePct < 0 {
			style = PriceDownStyle
		}
		change = style.Render(fmt.Sprintf("%+6.2f%%", r.ChangePct))
	}

	return fmt.Sprintf("%-5s %12s  %s  %-3s RSI %s  MACD %+9.2f  OI %+6.2f%%  FR %+.4f%%",
		r.Coin,
		formatUSD(r.Price),
		change,
		r.Interval,
		rsiStyle(r.RSI).Render(fmt.Sprintf("%5.1f", r.RSI)),
		r.MACDHist,
		r.OIDevPct,
		r.Funding*100,
	)
}

func rsiStyle(rsi float64) lipgloss.Style {
	switch {
	case rsi >= 70:
		return OverboughtStyle
	case rsi > 0 && rsi <= 30:
		return OversoldStyle
	default:
		return PriceFlatStyle
	}
}

func actionStyle(action domain.DecisionAction) lipgloss.Style {
	switch action {
	case domain.ActionBuy:
		return BuyStyle
	case domain.ActionSell:
		return SellStyle
	default:
		return HoldStyle
	}
}

// FormatDecision renders a model decision as a single line.
func FormatDecision(d domain.ModelDecision) string {
	symbol := d.Decision.Symbol
	if symbol == "" {
		symbol = "-"
	}
	at := "-"
	if !d.DecidedAt.IsZero() {
		at = d.DecidedAt.UTC().Format("15:04")
	}
	return fmt.Sprintf("%-16s %-9s %s %4.0f%%  %s",
		truncateText(d.Model, 16),
		symbol,
		actionStyle(d.Decision.Action).Render(fmt.Sprintf("%-4s", d.Decision.Action)),
		d.Decision.Confidence*100,
		SubtextStyle.Render(at),
	)
}

// RenderHeatMap renders a colored grid of coins by 24h change. Rows without a
// live ticker are drawn neutral.
func RenderHeatMap(rows []marketRow, width int) string {
	if len(rows) == 0 {
		return SubtextStyle.Render("No market data")
	}

	cellWidth := 8
	cols := width / cellWidth
	if cols < 1 {
		cols = 1
	}

	var lines []string
	var line []string
	for i, r := range rows {
		bg := HeatNeutral
		if r.HasChange {
			bg = heatColor(r.ChangePct)
		}
		cell := lipgloss.NewStyle().
			Background(bg).
			Foreground(lipgloss.Color("#000000")).
			Bold(true).
			Width(cellWidth - 1).
			Align(lipgloss.Center).
			Render(r.Coin)

		line = append(line, cell)
		if (i+1)%cols == 0 || i == len(rows)-1 {
			lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, line...))
			line = nil
		}
	}
	return strings.Join(lines, "\n")
}

// heatColor ignores moves under 0.5% either way.
func heatColor(changePct float64) lipgloss.Color {
	switch {
	case changePct >= 0.5:
		return HeatUp
	case changePct <= -0.5:
		return HeatDown
	default:
		return HeatNeutral
	}
}

// RenderRSIBar draws RSI on a 0-100 scale.
func RenderRSIBar(label string, rsi float64, barWidth int) string {
	if barWidth <= 0 {
		barWidth = 20
	}
	filled := int(math.Round(rsi / 100 * float64(barWidth)))
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := rsiStyle(rsi).Render(strings.Repeat("█", filled)) + SubtextStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%-10s %s %5.1f", label, bar, rsi)
}

func formatUSD(v float64) string {
	if v >= 1000 {
		return "$" + addCommas(fmt.Sprintf("%.0f", v))
	}
	if v >= 1 {
		return fmt.Sprintf("$%.2f", v)
	}
	return fmt.Sprintf("$%.4f", v)
}

func addCommas(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (n-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func formatCompact(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func rule(width int) string {
	if width < 4 {
		width = 4
	}
	return SubtextStyle.Render(strings.Repeat("─", width-2))
}
