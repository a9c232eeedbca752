package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"alpha-arena/internal/domain"
	"alpha-arena/internal/indicator"
)

const (
	defaultChartWidth  = 960
	defaultChartHeight = 640
	maxChartCandles    = 120
)

// Lower panels drawn under the candles.
const (
	PanelRSI    = "rsi"
	PanelMACD   = "macd"
	PanelVolume = "volume"
)

var Panels = []string{PanelRSI, PanelMACD, PanelVolume}

var (
	colBackground = color.RGBA{R: 250, G: 252, B: 255, A: 255}
	colGrid       = color.RGBA{R: 225, G: 232, B: 240, A: 255}
	colBull       = color.RGBA{R: 18, G: 140, B: 126, A: 255}
	colBear       = color.RGBA{R: 210, G: 61, B: 87, A: 255}
	colWick       = color.RGBA{R: 58, G: 64, B: 90, A: 255}
	colMarker     = color.RGBA{R: 62, G: 106, B: 214, A: 255}
	colLineA      = color.RGBA{R: 62, G: 106, B: 214, A: 255}
	colLineB      = color.RGBA{R: 255, G: 149, B: 0, A: 255}
	colBand       = color.RGBA{R: 104, G: 122, B: 146, A: 255}
	colVolume     = color.RGBA{R: 120, G: 139, B: 164, A: 255}
)

type Image struct {
	MimeType string
	Width    int
	Height   int
	Bytes    []byte
}

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// ParsePanel accepts an empty string as PanelRSI.
func ParsePanel(raw string) (string, error) {
	panel := strings.ToLower(strings.TrimSpace(raw))
	if panel == "" {
		return PanelRSI, nil
	}
	for _, p := range Panels {
		if p == panel {
			return panel, nil
		}
	}
	return "", fmt.Errorf("unsupported panel %q (use %s)", raw, strings.Join(Panels, ", "))
}

// RenderCandleChart draws the trailing candles with EMA20/EMA50 overlays and
// one lower panel. Indicators are computed over the full input so the visible
// window is already warmed up.
func (r *Renderer) RenderCandleChart(candles []*domain.Candle, panel string) (*Image, error) {
	series := indicator.Normalize(candles)
	if len(series) < 2 {
		return nil, fmt.Errorf("need at least 2 candles to render chart")
	}

	closes := indicator.Closes(series)
	emaFast := indicator.EMA(closes, indicator.EMAFastPeriod)
	emaSlow := indicator.EMA(closes, indicator.EMASlowPeriod)

	var lower func(img *image.RGBA, rect image.Rectangle, from int)
	switch panel {
	case PanelRSI:
		rsi := indicator.RSI(closes, indicator.RSIPeriod)
		lower = func(img *image.RGBA, rect image.Rectangle, from int) {
			drawHorizontalValueLine(img, rect, 30, 0, 100, colBand)
			drawHorizontalValueLine(img, rect, 70, 0, 100, colBand)
			drawSeries(img, rect, rsi[from:], 0, 100, colLineA)
		}
	case PanelMACD:
		line, signal, hist := indicator.MACD(closes)
		lower = func(img *image.RGBA, rect image.Rectangle, from int) {
			minV, maxV := combinedBounds(line[from:], signal[from:], hist[from:])
			drawHorizontalValueLine(img, rect, 0, minV, maxV, colBand)
			drawBars(img, rect, hist[from:], minV, maxV, colVolume)
			drawSeries(img, rect, line[from:], minV, maxV, colLineA)
			drawSeries(img, rect, signal[from:], minV, maxV, colLineB)
		}
	case PanelVolume:
		volumes := make([]float64, len(series))
		for i := range series {
			volumes[i] = series[i].Volume
		}
		avg := rollingMean(volumes, indicator.VolumeWindow)
		lower = func(img *image.RGBA, rect image.Rectangle, from int) {
			minV, maxV := combinedBounds(volumes[from:], avg[from:])
			minV = 0
			drawBars(img, rect, volumes[from:], minV, maxV, colVolume)
			drawSeries(img, rect, avg[from:], minV, maxV, colLineB)
		}
	default:
		return nil, fmt.Errorf("unsupported panel: %s", panel)
	}

	from := 0
	if len(series) > maxChartCandles {
		from = len(series) - maxChartCandles
	}
	visible := series[from:]

	img := image.NewRGBA(image.Rect(0, 0, defaultChartWidth, defaultChartHeight))
	fillRect(img, img.Bounds(), colBackground)

	mainRect := image.Rect(60, 20, defaultChartWidth-20, (defaultChartHeight*72)/100)
	auxRect := image.Rect(60, mainRect.Max.Y+16, defaultChartWidth-20, defaultChartHeight-30)
	drawGrid(img, mainRect, 8, 6)
	drawGrid(img, auxRect, 8, 3)

	minPrice, maxPrice := priceBounds(visible)
	drawCandles(img, mainRect, visible, minPrice, maxPrice)
	drawSeries(img, mainRect, emaFast[from:], minPrice, maxPrice, colLineA)
	drawSeries(img, mainRect, emaSlow[from:], minPrice, maxPrice, colLineB)

	markerX := mapIndexToX(len(visible)-1, len(visible), mainRect)
	drawLine(img, markerX, mainRect.Min.Y, markerX, mainRect.Max.Y, colMarker)

	lower(img, auxRect, from)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Image{
		MimeType: "image/png",
		Width:    defaultChartWidth,
		Height:   defaultChartHeight,
		Bytes:    buf.Bytes(),
	}, nil
}

func priceBounds(candles []domain.Candle) (float64, float64) {
	minPrice := candles[0].Low
	maxPrice := candles[0].High
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}
	if maxPrice <= minPrice {
		maxPrice = minPrice + 1
	}
	return minPrice, maxPrice
}

func drawCandles(img *image.RGBA, rect image.Rectangle, candles []domain.Candle, minPrice, maxPrice float64) {
	candleWidth := max(3, (rect.Dx()-10)/len(candles)-1)
	for i, c := range candles {
		x := mapIndexToX(i, len(candles), rect)
		highY := mapValueToY(c.High, minPrice, maxPrice, rect)
		lowY := mapValueToY(c.Low, minPrice, maxPrice, rect)
		drawLine(img, x, highY, x, lowY, colWick)

		openY := mapValueToY(c.Open, minPrice, maxPrice, rect)
		closeY := mapValueToY(c.Close, minPrice, maxPrice, rect)
		top := min(openY, closeY)
		bottom := max(openY, closeY)
		if bottom-top < 2 {
			bottom = top + 2
		}

		bodyRect := image.Rect(x-candleWidth/2, top, x+candleWidth/2+1, bottom+1)
		bodyColor := colBull
		if c.Close < c.Open {
			bodyColor = colBear
		}
		fillRect(img, bodyRect, bodyColor)
	}
}

// rollingMean averages the trailing window ending at each index; NaN until full.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

func combinedBounds(series ...[]float64) (float64, float64) {
	var all []float64
	for _, s := range series {
		all = append(all, s...)
	}
	return finiteBounds(all)
}

func drawSeries(img *image.RGBA, rect image.Rectangle, series []float64, minV, maxV float64, col color.RGBA) {
	lastX, lastY := -1, -1
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			lastX, lastY = -1, -1
			continue
		}
		x := mapIndexToX(i, len(series), rect)
		y := mapValueToY(v, minV, maxV, rect)
		if lastX >= 0 {
			drawLine(img, lastX, lastY, x, y, col)
		}
		lastX, lastY = x, y
	}
}

func drawBars(img *image.RGBA, rect image.Rectangle, series []float64, minV, maxV float64, col color.RGBA) {
	barW := max(1, (rect.Dx()-10)/len(series)-1)
	zeroY := mapValueToY(0, minV, maxV, rect)
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		x := mapIndexToX(i, len(series), rect)
		y := mapValueToY(v, minV, maxV, rect)
		top := min(y, zeroY)
		bottom := max(y, zeroY)
		fillRect(img, image.Rect(x-barW/2, top, x+barW/2+1, bottom+1), col)
	}
}

func drawGrid(img *image.RGBA, rect image.Rectangle, verticalLines, horizontalLines int) {
	for i := 0; i <= verticalLines; i++ {
		x := rect.Min.X + (rect.Dx()*i)/max(1, verticalLines)
		drawLine(img, x, rect.Min.Y, x, rect.Max.Y, colGrid)
	}
	for i := 0; i <= horizontalLines; i++ {
		y := rect.Min.Y + (rect.Dy()*i)/max(1, horizontalLines)
		drawLine(img, rect.Min.X, y, rect.Max.X, y, colGrid)
	}
}

func drawHorizontalValueLine(img *image.RGBA, rect image.Rectangle, value, minV, maxV float64, col color.RGBA) {
	y := mapValueToY(value, minV, maxV, rect)
	drawLine(img, rect.Min.X, y, rect.Max.X, y, col)
}

func mapIndexToX(idx, total int, rect image.Rectangle) int {
	if total <= 1 {
		return rect.Min.X
	}
	return rect.Min.X + (idx*(rect.Dx()-1))/(total-1)
}

func mapValueToY(value, minV, maxV float64, rect image.Rectangle) int {
	if maxV <= minV {
		return rect.Max.Y
	}
	ratio := (value - minV) / (maxV - minV)
	ratio = math.Max(0, math.Min(1, ratio))
	return rect.Max.Y - int(ratio*float64(rect.Dy()-1))
}

func finiteBounds(values []float64) (float64, float64) {
	minV := math.Inf(1)
	maxV := math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if math.IsInf(minV, 1) || math.IsInf(maxV, -1) {
		return 0, 1
	}
	if minV == maxV {
		return minV, maxV + 1
	}
	return minV, maxV
}

func fillRect(img *image.RGBA, rect image.Rectangle, col color.RGBA) {
	r := rect.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		if image.Pt(x0, y0).In(img.Bounds()) {
			img.SetRGBA(x0, y0, col)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			if x0 == x1 {
				break
			}
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			if y0 == y1 {
				break
			}
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
