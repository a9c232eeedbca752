package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"alpha-arena/internal/domain"
	"alpha-arena/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerResources(server *mcp.Server, market MarketReader, decisions DecisionReader) {
	server.AddResource(&mcp.Resource{
		URI:         "market://supported-coins",
		Name:        "supported-coins",
		Description: "Coins aggregated by the service",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		_ = ctx
		coins := domain.SupportedCoins
		if market != nil {
			coins = market.Coins()
		}
		return jsonResource(req.Params.URI, coins)
	})

	server.AddResource(&mcp.Resource{
		URI:         "market://timeframes",
		Name:        "timeframes",
		Description: "Supported candle timeframes and the ones included in each record",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		_ = ctx
		configured := domain.DefaultTimeframes
		if market != nil {
			configured = market.Timeframes()
		}
		return jsonResource(req.Params.URI, timeframesOutput{Supported: domain.SupportedTimeframes, Configured: configured})
	})

	server.AddResource(&mcp.Resource{
		URI:         "decisions://latest",
		Name:        "decisions-latest",
		Description: "Decisions from the most recent poll cycle",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		_ = ctx
		if decisions == nil {
			return nil, fmt.Errorf("decision poller unavailable")
		}
		latest := decisions.Latest()
		return jsonResource(req.Params.URI, decisionsOutput{Decisions: latest, Agree: domain.DecisionsAgree(latest)})
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "market://prompt/{coin}",
		Name:        "prompt-by-coin",
		Description: "Prompt text for a specific coin",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if market == nil {
			return nil, errMarketUnavailable
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "market" || parsed.Host != "prompt" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		coin, err := normalizeCoin(strings.Trim(strings.TrimSpace(parsed.Path), "/"))
		if err != nil {
			return nil, err
		}
		record, err := market.GetCompleteData(ctx, coin)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     service.FormatForPrompt(record),
			}},
		}, nil
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "market://record/{coin}",
		Name:        "record-by-coin",
		Description: "Assembled JSON record for a specific coin",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if market == nil {
			return nil, errMarketUnavailable
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "market" || parsed.Host != "record" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		coin, err := normalizeCoin(strings.Trim(strings.TrimSpace(parsed.Path), "/"))
		if err != nil {
			return nil, err
		}
		record, err := market.GetCompleteData(ctx, coin)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, record)
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
