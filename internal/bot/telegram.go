package bot

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"alpha-arena/internal/chart"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/service"

	tele "gopkg.in/telebot.v3"
)

const (
	maxMessageLen    = 4000
	chartCandleLimit = 200
)

type MarketReader interface {
	Coins() []string
	GetCandles(ctx context.Context, coin, interval string, limit int) []*domain.Candle
	GetCompleteData(ctx context.Context, coin string) (*domain.InstrumentRecord, error)
	GetLiveData(symbol string) domain.LiveSnapshot
}

type AccountReader interface {
	GetAccountInfo(ctx context.Context) domain.AccountSnapshot
}

type DecisionReader interface {
	Latest() []domain.ModelDecision
}

func StartTelegramBot(market MarketReader, account AccountReader, decisions DecisionReader) *AlertDispatcher {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/market", func(c tele.Context) error {
		_ = c.Notify(tele.Typing)
		return c.Send(marketReply(context.Background(), market, c.Args()))
	})

	b.Handle("/prompt", func(c tele.Context) error {
		_ = c.Notify(tele.Typing)
		return c.Send(promptReply(context.Background(), market, c.Args()))
	})

	renderer := chart.NewRenderer()
	b.Handle("/chart", func(c tele.Context) error {
		_ = c.Notify(tele.UploadingPhoto)
		img, caption := chartReply(context.Background(), market, renderer, c.Args())
		if img == nil {
			return c.Send(caption)
		}
		return c.Send(&tele.Photo{
			File:    tele.FromReader(bytes.NewReader(img.Bytes)),
			Caption: caption,
		})
	})

	b.Handle("/live", func(c tele.Context) error {
		return c.Send(liveReply(market, c.Args()))
	})

	b.Handle("/account", func(c tele.Context) error {
		return c.Send(accountReply(context.Background(), account))
	})

	b.Handle("/decide", func(c tele.Context) error {
		return c.Send(decisionsReply(decisions))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		cmd, err := parseAlertCommand(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts changes | /alerts off | /alerts status")
		}
		return c.Send(alertsReply(alerts, chat.ID, cmd))
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func parseCoinArg(market MarketReader, args []string, usage string) (string, string) {
	supported := strings.Join(market.Coins(), ", ")
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Sprintf("Usage: %s\nSupported: %s", usage, supported)
	}
	coin := domain.CoinFor(args[0])
	for _, c := range market.Coins() {
		if c == coin {
			return coin, ""
		}
	}
	return "", fmt.Sprintf("Unknown coin: %s\nSupported: %s", coin, supported)
}

func marketReply(ctx context.Context, market MarketReader, args []string) string {
	if market == nil {
		return "Market service unavailable"
	}
	coin, msg := parseCoinArg(market, args, "/market BTC")
	if coin == "" {
		return msg
	}
	rec, err := market.GetCompleteData(ctx, coin)
	if err != nil {
		return fmt.Sprintf("Error fetching market data for %s: %v", coin, err)
	}
	return formatMarketSummary(rec)
}

func formatMarketSummary(rec *domain.InstrumentRecord) string {
	lines := []string{fmt.Sprintf("%s (%s)", rec.Coin, rec.Symbol)}
	for _, tf := range rec.Timeframes {
		set := rec.IndicatorsFor(tf)
		if set == nil {
			lines = append(lines, fmt.Sprintf("%s: no data", tf))
			continue
		}
		lines = append(lines, fmt.Sprintf(
			"%s: price %.4f | EMA20 %.4f | RSI14 %.2f | MACD %.4f | vol x%.2f",
			tf, set.CurrentPrice, set.EMA20, set.RSI14, set.MACD, set.VolumeRatio,
		))
	}
	lines = append(lines,
		fmt.Sprintf("OI: %.2f (avg %.2f, %+.2f%%)", rec.OpenInterest.Latest, rec.OpenInterest.Average, rec.OpenInterest.DeviationPct),
		fmt.Sprintf("Funding: %.6f, persistence %d", rec.FundingRate.CurrentRate, rec.FundingRate.PersistenceBars),
	)
	return strings.Join(lines, "\n")
}

func promptReply(ctx context.Context, market MarketReader, args []string) string {
	if market == nil {
		return "Market service unavailable"
	}
	coin, msg := parseCoinArg(market, args, "/prompt BTC")
	if coin == "" {
		return msg
	}
	rec, err := market.GetCompleteData(ctx, coin)
	if err != nil {
		return fmt.Sprintf("Error fetching market data for %s: %v", coin, err)
	}
	return truncate(service.FormatForPrompt(rec))
}

// chartReply returns either an image with its caption or a text reply.
func chartReply(ctx context.Context, market MarketReader, renderer *chart.Renderer, args []string) (*chart.Image, string) {
	if market == nil {
		return nil, "Market service unavailable"
	}
	coin, msg := parseCoinArg(market, args, "/chart BTC [4h] [rsi|macd|volume]")
	if coin == "" {
		return nil, msg
	}

	interval := "4h"
	if len(args) > 1 {
		interval = strings.ToLower(strings.TrimSpace(args[1]))
		if !domain.IsSupportedTimeframe(interval) {
			return nil, fmt.Sprintf("Unsupported timeframe: %s\nSupported: %s", interval, strings.Join(domain.SupportedTimeframes, ", "))
		}
	}
	var rawPanel string
	if len(args) > 2 {
		rawPanel = args[2]
	}
	panel, err := chart.ParsePanel(rawPanel)
	if err != nil {
		return nil, err.Error()
	}

	candles := market.GetCandles(ctx, coin, interval, chartCandleLimit)
	img, err := renderer.RenderCandleChart(candles, panel)
	if err != nil {
		return nil, fmt.Sprintf("No chart for %s %s: %v", coin, interval, err)
	}
	return img, fmt.Sprintf("%s %s | EMA20/EMA50 | %s", domain.SymbolFor(coin), interval, strings.ToUpper(panel))
}

func liveReply(market MarketReader, args []string) string {
	if market == nil {
		return "Market service unavailable"
	}
	coin, msg := parseCoinArg(market, args, "/live BTC")
	if coin == "" {
		return msg
	}
	snap := market.GetLiveData(domain.SymbolFor(coin))
	if snap.Empty() {
		return fmt.Sprintf("No live data for %s yet.", coin)
	}
	var lines []string
	if t := snap.Ticker; t != nil {
		lines = append(lines, fmt.Sprintf("%s ticker: %.4f (24h %+.2f%%, vol %.2f)", t.Symbol, t.Price, t.ChangePct, t.Volume))
	}
	if k := snap.Kline; k != nil {
		state := "open"
		if k.Closed {
			state = "closed"
		}
		lines = append(lines, fmt.Sprintf("%s kline %s: O %.4f H %.4f L %.4f C %.4f", k.Symbol, state, k.Open, k.High, k.Low, k.Close))
	}
	return strings.Join(lines, "\n")
}

func accountReply(ctx context.Context, account AccountReader) string {
	if account == nil {
		return "Account service unavailable"
	}
	snap := account.GetAccountInfo(ctx)
	if snap.Error != "" {
		return "Account unavailable: " + snap.Error
	}
	lines := []string{fmt.Sprintf("Total value: %.2f USDT", snap.TotalValueUSDT)}
	for _, asset := range sortedAssets(snap.Balances) {
		lines = append(lines, fmt.Sprintf("%s: %.8g", asset, snap.Balances[asset]))
	}
	return strings.Join(lines, "\n")
}

func decisionsReply(decisions DecisionReader) string {
	if decisions == nil {
		return "Decision poller not configured. Set LLM_API_KEY to enable."
	}
	latest := decisions.Latest()
	if len(latest) == 0 {
		return "No decisions yet."
	}
	return formatAlertMessage(latest)
}

func alertsReply(alerts *AlertDispatcher, chatID int64, cmd alertCommand) string {
	switch cmd.op {
	case "on":
		if !alerts.Subscribe(chatID, cmd.filter) {
			return "Decision alerts are already set to " + string(cmd.filter) + " for this chat."
		}
		if cmd.filter == filterChanges {
			return "Decision alerts enabled. Only cycles where a model changes its call will be sent."
		}
		return "Decision alerts enabled for every cycle."
	case "off":
		if alerts.Unsubscribe(chatID) {
			return "Decision alerts disabled for this chat."
		}
		return "Decision alerts are already disabled for this chat."
	default:
		if filter := alerts.Filter(chatID); filter != "" {
			return "Alerts status: ON (" + string(filter) + ")"
		}
		return "Alerts status: OFF"
	}
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen] + "\n\n[truncated]"
	}
	return s
}

func sortedAssets(balances map[string]float64) []string {
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
