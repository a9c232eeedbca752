package mcp

import (
	"context"
	"errors"
	"fmt"

	"alpha-arena/internal/chart"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var errMarketUnavailable = errors.New("market service unavailable")

func registerTools(server *mcp.Server, market MarketReader, account AccountReader, decisions DecisionReader) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "market_snapshot",
		Description: "Assemble the full record for one coin: indicator bundles per timeframe, open interest and funding rate",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in coinInput) (*mcp.CallToolResult, marketSnapshotOutput, error) {
		if market == nil {
			return nil, marketSnapshotOutput{}, errMarketUnavailable
		}
		coin, err := normalizeCoin(in.Coin)
		if err != nil {
			return nil, marketSnapshotOutput{}, err
		}
		record, err := market.GetCompleteData(ctx, coin)
		if err != nil {
			return nil, marketSnapshotOutput{}, err
		}
		flat, err := recordToMap(record)
		if err != nil {
			return nil, marketSnapshotOutput{}, err
		}
		return nil, marketSnapshotOutput{Coin: coin, Degraded: record.Degraded(), Record: flat}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "market_prompt",
		Description: "Render the prompt text for one coin",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in coinInput) (*mcp.CallToolResult, marketPromptOutput, error) {
		if market == nil {
			return nil, marketPromptOutput{}, errMarketUnavailable
		}
		coin, err := normalizeCoin(in.Coin)
		if err != nil {
			return nil, marketPromptOutput{}, err
		}
		record, err := market.GetCompleteData(ctx, coin)
		if err != nil {
			return nil, marketPromptOutput{}, err
		}
		return nil, marketPromptOutput{Coin: coin, Prompt: service.FormatForPrompt(record)}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "market_all_prompt",
		Description: "Aggregate every configured coin and render the combined prompt text",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, marketAllPromptOutput, error) {
		if market == nil {
			return nil, marketAllPromptOutput{}, errMarketUnavailable
		}
		records := market.GetAllData(ctx)
		return nil, marketAllPromptOutput{Coins: market.Coins(), Prompt: market.FormatAllForPrompt(records)}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "indicators_get",
		Description: "Compute the indicator bundle (EMA, MACD, RSI, ATR, volume) for a coin and timeframe",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, indicatorsOutput, error) {
		if market == nil {
			return nil, indicatorsOutput{}, errMarketUnavailable
		}
		coin, interval, limit, err := normalizeSeries(in)
		if err != nil {
			return nil, indicatorsOutput{}, err
		}
		symbol := domain.SymbolFor(coin)
		set := market.GetTechnicalIndicators(ctx, symbol, interval, limit)
		return nil, indicatorsOutput{Symbol: symbol, Interval: interval, Indicators: set}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "candles_list",
		Description: "Get cleaned OHLCV candles (ascending, deduplicated) by coin, timeframe and limit",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, candlesListOutput, error) {
		if market == nil {
			return nil, candlesListOutput{}, errMarketUnavailable
		}
		coin, interval, limit, err := normalizeSeries(in)
		if err != nil {
			return nil, candlesListOutput{}, err
		}
		candles := market.GetCandles(ctx, coin, interval, limit)
		return nil, candlesListOutput{Symbol: domain.SymbolFor(coin), Interval: interval, Candles: candles}, nil
	})

	renderer := chart.NewRenderer()
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chart_render",
		Description: "Render a PNG candle chart with EMA20/EMA50 overlays and an RSI, MACD or volume panel",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in chartInput) (*mcp.CallToolResult, any, error) {
		if market == nil {
			return nil, nil, errMarketUnavailable
		}
		coin, interval, limit, err := normalizeSeries(seriesInput{Coin: in.Coin, Interval: in.Interval, Limit: in.Limit})
		if err != nil {
			return nil, nil, err
		}
		panel, err := chart.ParsePanel(in.Panel)
		if err != nil {
			return nil, nil, err
		}
		img, err := renderer.RenderCandleChart(market.GetCandles(ctx, coin, interval, limit), panel)
		if err != nil {
			return nil, nil, fmt.Errorf("render %s %s: %w", domain.SymbolFor(coin), interval, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.ImageContent{Data: img.Bytes, MIMEType: img.MimeType},
				&mcp.TextContent{Text: fmt.Sprintf("%s %s, %s panel", domain.SymbolFor(coin), interval, panel)},
			},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "live_get",
		Description: "Get the most recent streamed kline and 24h ticker for a coin",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in coinInput) (*mcp.CallToolResult, liveOutput, error) {
		if market == nil {
			return nil, liveOutput{}, errMarketUnavailable
		}
		coin, err := normalizeCoin(in.Coin)
		if err != nil {
			return nil, liveOutput{}, err
		}
		symbol := domain.SymbolFor(coin)
		return nil, liveOutput{Symbol: symbol, Live: market.GetLiveData(symbol)}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "account_get",
		Description: "Get non-zero exchange balances and their USDT value",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, accountOutput, error) {
		if account == nil {
			return nil, accountOutput{}, fmt.Errorf("account service unavailable")
		}
		return nil, accountOutput{Account: account.GetAccountInfo(ctx)}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decisions_latest",
		Description: "Get the decisions from the most recent poll cycle, one per configured model",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, decisionsOutput, error) {
		if decisions == nil {
			return nil, decisionsOutput{}, fmt.Errorf("decision poller unavailable")
		}
		latest := decisions.Latest()
		return nil, decisionsOutput{Decisions: latest, Agree: domain.DecisionsAgree(latest)}, nil
	})
}
