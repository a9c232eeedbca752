package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"alpha-arena/internal/advisor"
	"alpha-arena/internal/cache"
	"alpha-arena/internal/config"
	"alpha-arena/internal/job"
	mcpserver "alpha-arena/internal/mcp"
	"alpha-arena/internal/provider"
	"alpha-arena/internal/repository"
	"alpha-arena/internal/service"
	"alpha-arena/pkg/tracing"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const defaultMCPHTTPMaxBodyBytes int64 = 1 << 20 // 1MiB

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newBinanceProviderFunc = provider.NewBinanceProvider
	newMCPServerFunc       = mcpserver.NewServer
	newMCPHandlerFunc      = mcpserver.NewHTTPTransportHandler
	newOpenAIClientFunc    = func(apiKey, baseURL, model string) advisor.LLMClient {
		return advisor.NewOpenAIClient(apiKey, baseURL, model)
	}
	startDecisionPollerFunc = func(p *job.DecisionPoller, ctx context.Context) { go p.Start(ctx) }
	runStdioFunc            = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFn = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	market, account := buildReaders(cfg, tracer, redisClient)
	decisions := buildDecisionReader(ctx, cfg, tracer, market)

	mcpSrv := newMCPServerFunc(tracer, market, account, decisions, mcpserver.ServerConfig{
		RequestTimeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
	})

	transport := strings.ToLower(strings.TrimSpace(cfg.MCPTransport))
	switch transport {
	case "", "stdio":
		if err := runStdioFunc(ctx, mcpSrv); err != nil {
			log.Fatalf("mcp stdio server failed: %v", err)
		}
	case "http":
		if err := runHTTPMode(ctx, cancel, cfg, mcpSrv); err != nil {
			log.Fatalf("mcp http server failed: %v", err)
		}
	default:
		log.Fatalf("unsupported MCP_TRANSPORT: %s", cfg.MCPTransport)
	}
}

// buildReaders wires the REST-backed market and account services. MCP sessions
// are short, so no live stream is attached.
func buildReaders(cfg *config.Config, tracer trace.Tracer, rdb *redis.Client) (*service.MarketDataService, *service.AccountService) {
	binance := newBinanceProviderFunc(tracer, provider.BinanceConfig{
		SpotURL:    cfg.BinanceSpotURL,
		FuturesURL: cfg.BinanceFuturesURL,
		APIKey:     cfg.BinanceAPIKey,
		APISecret:  cfg.BinanceAPISecret,
		Timeout:    time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
	})
	candles := repository.NewCandleCache(binance, rdb, time.Duration(cfg.CandleCacheTTLSecs)*time.Second, tracer)

	market := service.NewMarketDataService(tracer, candles, binance, nil, service.MarketDataConfig{
		Coins:              cfg.MarketCoins,
		Timeframes:         cfg.MarketTimeframes,
		CandleLimit:        cfg.MarketCandleLimit,
		Concurrency:        cfg.MarketConcurrency,
		OpenInterestWindow: cfg.OpenInterestWindow,
		FundingWindow:      cfg.FundingWindow,
		VolumeWindow:       cfg.VolumeWindow,
	})
	return market, service.NewAccountService(tracer, binance, cfg.Authenticated())
}

// buildDecisionReader returns nil without an LLM key so the decision tools
// report "not configured" instead of an empty history.
func buildDecisionReader(ctx context.Context, cfg *config.Config, tracer trace.Tracer, market job.MarketSnapshotter) mcpserver.DecisionReader {
	if cfg.LLMAPIKey == "" {
		return nil
	}
	deciders := make([]job.Decider, 0, len(cfg.LLMModels))
	for _, model := range cfg.LLMModels {
		client := newOpenAIClientFunc(cfg.LLMAPIKey, cfg.LLMBaseURL, model)
		deciders = append(deciders, advisor.NewAdvisorService(tracer, client, model))
	}
	poller := job.NewDecisionPoller(tracer, market, deciders, nil, time.Duration(cfg.DecisionPollSecs)*time.Second)
	startDecisionPollerFunc(poller, ctx)
	return poller
}

func listenAddr(cfg *config.Config) string {
	host := strings.TrimSpace(cfg.MCPHTTPBind)
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.MCPHTTPPort))
}

func runHTTPMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	if !cfg.MCPHTTPEnabled {
		return fmt.Errorf("MCP_HTTP_ENABLED must be true when MCP_TRANSPORT=http")
	}
	if strings.TrimSpace(cfg.MCPAuthToken) == "" {
		return fmt.Errorf("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	handler := newMCPHandlerFunc(mcpSrv, mcpserver.HTTPHandlerConfig{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
		MaxBodyBytes:    defaultMCPHTTPMaxBodyBytes,
	})

	addr := listenAddr(cfg)
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Printf("mcp http server failed: %v", err)
		}
	}()
	log.Printf("mcp http transport listening on %s", addr)

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFn(srv, shutdownCtx); err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
