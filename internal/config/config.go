package config

import (
	"alpha-arena/internal/domain"
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	BinanceAPIKey     string
	BinanceAPISecret  string
	BinanceSpotURL    string
	BinanceFuturesURL string
	BinanceStreamURL  string
	HTTPTimeoutSecs   int

	MarketCoins        []string
	MarketTimeframes   []string
	MarketCandleLimit  int
	MarketConcurrency  int
	OpenInterestWindow int
	FundingWindow      int
	VolumeWindow       int

	StreamEnabled      bool
	StreamInterval     string
	RedisURL           string
	CandleCacheTTLSecs int

	LLMAPIKey        string
	LLMBaseURL       string
	LLMModels        []string
	DecisionPollSecs int

	TelegramBotToken string

	MCPTransport          string
	MCPHTTPEnabled        bool
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int

	SSHEnabled            bool
	SSHBind               string
	SSHPort               int
	SSHHostKeyPath        string
	SSHAuthorizedKeysPath string
	SSHIdleTimeoutSecs    int
}

// Authenticated reports whether signed exchange endpoints can be used.
func (c *Config) Authenticated() bool {
	return c.BinanceAPIKey != "" && c.BinanceAPISecret != ""
}

func Load() *Config {
	cfg := &Config{
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceSpotURL:    strings.TrimSpace(os.Getenv("BINANCE_SPOT_URL")),
		BinanceFuturesURL: strings.TrimSpace(os.Getenv("BINANCE_FUTURES_URL")),
		BinanceStreamURL:  strings.TrimSpace(os.Getenv("BINANCE_STREAM_URL")),
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMBaseURL:        strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		MCPAuthToken:      os.Getenv("MCP_AUTH_TOKEN"),
	}

	if !cfg.Authenticated() {
		log.Println("Warning: BINANCE_API_KEY/BINANCE_API_SECRET not set, account data will be unavailable")
	}
	if cfg.BinanceSpotURL == "" {
		cfg.BinanceSpotURL = "https://api.binance.com"
	}
	if cfg.BinanceFuturesURL == "" {
		cfg.BinanceFuturesURL = "https://fapi.binance.com"
	}
	if cfg.BinanceStreamURL == "" {
		cfg.BinanceStreamURL = "wss://stream.binance.com:9443"
	}
	cfg.HTTPTimeoutSecs = positiveInt("HTTP_TIMEOUT_SECS", 10)

	cfg.MarketCoins = parseCoins(os.Getenv("MARKET_COINS"))
	cfg.MarketTimeframes = parseTimeframes(os.Getenv("MARKET_TIMEFRAMES"), domain.DefaultTimeframes)
	cfg.MarketCandleLimit = positiveInt("MARKET_CANDLE_LIMIT", 200)
	if cfg.MarketCandleLimit > 1000 {
		log.Printf("Warning: MARKET_CANDLE_LIMIT=%d above exchange page size, using 1000", cfg.MarketCandleLimit)
		cfg.MarketCandleLimit = 1000
	}
	cfg.MarketConcurrency = positiveInt("MARKET_CONCURRENCY", 2)
	cfg.OpenInterestWindow = positiveInt("OI_WINDOW", 30)
	cfg.FundingWindow = positiveInt("FUNDING_WINDOW", 10)
	cfg.VolumeWindow = positiveInt("VOLUME_WINDOW", 20)

	cfg.StreamEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("STREAM_ENABLED")), "true")
	cfg.StreamInterval = strings.TrimSpace(os.Getenv("STREAM_INTERVAL"))
	if !domain.IsSupportedTimeframe(cfg.StreamInterval) {
		if cfg.StreamInterval != "" {
			log.Printf("Warning: unsupported STREAM_INTERVAL=%q, defaulting to 5m", cfg.StreamInterval)
		}
		cfg.StreamInterval = "5m"
	}

	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, candle mirror disabled")
	}
	cfg.CandleCacheTTLSecs = positiveInt("CANDLE_CACHE_TTL_SECS", 600)

	if cfg.LLMAPIKey == "" {
		log.Println("Warning: LLM_API_KEY not set, decision poller will be disabled")
	}
	cfg.LLMModels = parseList(os.Getenv("LLM_MODEL"))
	if len(cfg.LLMModels) == 0 {
		cfg.LLMModels = []string{"qwen-plus"}
	}
	cfg.DecisionPollSecs = positiveInt("DECISION_POLL_SECS", 300)

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("MCP_HTTP_ENABLED")), "true")

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}
	cfg.MCPHTTPPort = positiveInt("MCP_HTTP_PORT", 8090)
	cfg.MCPRequestTimeoutSecs = positiveInt("MCP_REQUEST_TIMEOUT_SECS", 15)
	cfg.MCPRateLimitPerMin = positiveInt("MCP_RATE_LIMIT_PER_MIN", 60)

	cfg.SSHEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("SSH_ENABLED")), "true")
	cfg.SSHBind = strings.TrimSpace(os.Getenv("SSH_BIND"))
	if cfg.SSHBind == "" {
		cfg.SSHBind = "127.0.0.1"
	}
	cfg.SSHPort = positiveInt("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/alpha_arena_ed25519"
	}
	cfg.SSHAuthorizedKeysPath = strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS"))
	if cfg.SSHEnabled && cfg.SSHAuthorizedKeysPath == "" {
		log.Println("Warning: SSH_ENABLED without SSH_AUTHORIZED_KEYS, ssh dashboard will not start")
	}
	cfg.SSHIdleTimeoutSecs = positiveInt("SSH_IDLE_TIMEOUT_SECS", 900)

	return cfg
}

func positiveInt(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", name, v, fallback)
		return fallback
	}
	return n
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseCoins(raw string) []string {
	var out []string
	for _, v := range parseList(strings.ToUpper(raw)) {
		out = append(out, domain.CoinFor(v))
	}
	if len(out) == 0 {
		return append([]string(nil), domain.SupportedCoins...)
	}
	return out
}

func parseTimeframes(raw string, fallback []string) []string {
	var out []string
	for _, tf := range parseList(raw) {
		if !domain.IsSupportedTimeframe(tf) {
			log.Printf("Warning: ignoring unsupported timeframe %q", tf)
			continue
		}
		out = append(out, tf)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
