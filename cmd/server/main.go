package main

//go:generate go run github.com/swaggo/swag/cmd/swag@v1.16.6 init --dir ../../ --generalInfo cmd/server/main.go --output ../../docs --outputTypes go

import (
	"context"
	"errors"
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
	"alpha-arena/internal/bot"
	"alpha-arena/internal/cache"
	"alpha-arena/internal/config"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/handler"
	"alpha-arena/internal/job"
	"alpha-arena/internal/provider"
	"alpha-arena/internal/repository"
	"alpha-arena/internal/service"
	"alpha-arena/internal/stream"
	"alpha-arena/internal/tui"
	"alpha-arena/pkg/tracing"

	"github.com/charmbracelet/ssh"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "alpha-arena/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newBinanceProviderFunc = provider.NewBinanceProvider
	newStreamFeedFunc      = func(cfg provider.BinanceStreamConfig) stream.Feed {
		return provider.NewBinanceStream(cfg)
	}
	startStreamFunc = func(c *stream.Cache, ctx context.Context, symbols []string) error {
		return c.Start(ctx, symbols)
	}
	newOpenAIClientFunc = func(apiKey, baseURL, model string) advisor.LLMClient {
		return advisor.NewOpenAIClient(apiKey, baseURL, model)
	}
	newAdvisorServiceFunc   = advisor.NewAdvisorService
	newDecisionPollerFunc   = job.NewDecisionPoller
	startDecisionPollerFunc = func(p *job.DecisionPoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramBotFunc    = bot.StartTelegramBot
	newHandlerFunc          = handler.New
	newRouterFunc           = gin.Default
	setupSignalNotify       = ossignal.Notify
	waitForSignalFunc       = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc     = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc  = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	loadAuthorizedKeysFunc  = tui.LoadAuthorizedKeys
	newSSHServerFunc        = tui.NewSSHServer
	startSSHServerFunc      = func(srv *ssh.Server) error { return srv.ListenAndServe() }
	shutdownSSHServerFunc   = func(srv *ssh.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Alpha Arena Market API
// @version         1.0
// @description     Market data aggregation, indicator bundles and LLM decision polling over Binance data.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Exchange client, candle cache and optional live stream
	binance := newBinanceProviderFunc(tracer, provider.BinanceConfig{
		SpotURL:    cfg.BinanceSpotURL,
		FuturesURL: cfg.BinanceFuturesURL,
		APIKey:     cfg.BinanceAPIKey,
		APISecret:  cfg.BinanceAPISecret,
		Timeout:    time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
	})
	candleCache := repository.NewCandleCache(binance, redisClient, time.Duration(cfg.CandleCacheTTLSecs)*time.Second, tracer)

	var live service.LiveSource
	if cfg.StreamEnabled {
		liveCache := stream.NewCache(newStreamFeedFunc(provider.BinanceStreamConfig{
			URL:      cfg.BinanceStreamURL,
			Interval: cfg.StreamInterval,
		}))
		if err := startStreamFunc(liveCache, ctx, symbolsFor(cfg.MarketCoins)); err != nil {
			log.Printf("Warning: live stream unavailable: %v", err)
		} else {
			live = liveCache
			defer func() {
				if err := liveCache.Stop(); err != nil {
					log.Printf("error stopping live stream: %v", err)
				}
			}()
		}
	}

	marketService := service.NewMarketDataService(tracer, candleCache, binance, live, service.MarketDataConfig{
		Coins:              cfg.MarketCoins,
		Timeframes:         cfg.MarketTimeframes,
		CandleLimit:        cfg.MarketCandleLimit,
		Concurrency:        cfg.MarketConcurrency,
		OpenInterestWindow: cfg.OpenInterestWindow,
		FundingWindow:      cfg.FundingWindow,
		VolumeWindow:       cfg.VolumeWindow,
	})
	accountService := service.NewAccountService(tracer, binance, cfg.Authenticated())

	// One advisor per configured model; none without an API key
	var (
		deciders []job.Decider
		advisors []tui.AdvisorQuerier
	)
	if cfg.LLMAPIKey != "" {
		for _, model := range cfg.LLMModels {
			llm := newOpenAIClientFunc(cfg.LLMAPIKey, cfg.LLMBaseURL, model)
			svc := newAdvisorServiceFunc(tracer, llm, model)
			deciders = append(deciders, svc)
			advisors = append(advisors, svc)
		}
	}
	poller := newDecisionPollerFunc(tracer, marketService, deciders, nil, time.Duration(cfg.DecisionPollSecs)*time.Second)

	// Start Telegram bot, then route decision alerts through it
	if alerts := startTelegramBotFunc(marketService, accountService, poller); alerts != nil {
		poller.SetAlertSink(alerts)
	}
	startDecisionPollerFunc(poller, ctx)

	h := newHandlerFunc(tracer, binance, marketService, accountService, poller)

	r := newRouterFunc()
	r.Use(cors.Default())
	r.Use(otelgin.Middleware("alpha-arena"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    httpAddrFromEnv(),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Terminal dashboard over SSH, key auth only
	sshServer := newDashboardServer(cfg, func(user string) tui.Services {
		return tui.Services{
			Market:    marketService,
			Advisors:  advisors,
			Decisions: poller,
			Username:  user,
		}
	})
	if sshServer != nil {
		go func() {
			if err := startSSHServerFunc(sshServer); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				log.Printf("ssh dashboard stopped: %v", err)
			}
		}()
		log.Printf("SSH dashboard listening on %s", sshServer.Addr)
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if sshServer != nil {
		if err := shutdownSSHServerFunc(sshServer, shutdownCtx); err != nil {
			log.Printf("error shutting down ssh dashboard: %v", err)
		}
	}
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func httpAddrFromEnv() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return ":8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// newDashboardServer returns nil when the SSH dashboard is disabled or cannot
// be set up; the HTTP API keeps running either way.
func newDashboardServer(cfg *config.Config, services func(user string) tui.Services) *ssh.Server {
	if !cfg.SSHEnabled || cfg.SSHAuthorizedKeysPath == "" {
		return nil
	}
	keys, err := loadAuthorizedKeysFunc(cfg.SSHAuthorizedKeysPath)
	if err != nil {
		log.Printf("Warning: SSH dashboard disabled: %v", err)
		return nil
	}
	srv, err := newSSHServerFunc(tui.SSHConfig{
		Addr:        net.JoinHostPort(cfg.SSHBind, strconv.Itoa(cfg.SSHPort)),
		HostKeyPath: cfg.SSHHostKeyPath,
		IdleTimeout: time.Duration(cfg.SSHIdleTimeoutSecs) * time.Second,
	}, keys, services)
	if err != nil {
		log.Printf("Warning: SSH dashboard disabled: %v", err)
		return nil
	}
	return srv
}

func symbolsFor(coins []string) []string {
	symbols := make([]string, 0, len(coins))
	for _, coin := range coins {
		symbols = append(symbols, domain.SymbolFor(coin))
	}
	return symbols
}
