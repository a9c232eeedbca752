package domain

import (
	"strings"
	"time"
)

// QuoteAsset is appended to a coin to form the exchange symbol (BTC -> BTCUSDT).
const QuoteAsset = "USDT"

var SupportedCoins = []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"}

var SupportedTimeframes = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "12h", "1d"}

var DefaultTimeframes = []string{"3m", "5m", "15m", "4h"}

// StableCoins are valued at 1 USDT when totalling account balances.
var StableCoins = map[string]struct{}{
	"USDT":  {},
	"USDC":  {},
	"FDUSD": {},
	"BUSD":  {},
	"DAI":   {},
}

// SymbolFor maps a coin (BTC) to its exchange symbol (BTCUSDT). Inputs that
// already carry the quote asset are returned normalised.
func SymbolFor(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return ""
	}
	if strings.HasSuffix(coin, QuoteAsset) && len(coin) > len(QuoteAsset) {
		return coin
	}
	return coin + QuoteAsset
}

// CoinFor is the inverse of SymbolFor.
func CoinFor(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(symbol, QuoteAsset) && len(symbol) > len(QuoteAsset) {
		return strings.TrimSuffix(symbol, QuoteAsset)
	}
	return symbol
}

func IsSupportedTimeframe(interval string) bool {
	for _, tf := range SupportedTimeframes {
		if tf == interval {
			return true
		}
	}
	return false
}

type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Valid reports whether the candle satisfies low <= {open, close} <= high with
// positive prices and a non-negative volume.
func (c Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume < 0 {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return c.High >= c.Open && c.High >= c.Close
}

type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionHold DecisionAction = "HOLD"
)

// Decision is what the downstream LLM consumer returns for a prompt.
type Decision struct {
	Symbol     string         `json:"symbol"`
	Action     DecisionAction `json:"action"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
}

func HoldDecision(rationale string) Decision {
	return Decision{Action: ActionHold, Rationale: rationale}
}

// ModelDecision tags a decision with the model that produced it.
type ModelDecision struct {
	Model     string    `json:"model"`
	Decision  Decision  `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
}

// DecisionsAgree reports whether every decision names the same symbol and
// action. Fewer than two decisions never agree.
func DecisionsAgree(decisions []ModelDecision) bool {
	if len(decisions) < 2 {
		return false
	}
	first := decisions[0].Decision
	for _, d := range decisions[1:] {
		if d.Decision.Symbol != first.Symbol || d.Decision.Action != first.Action {
			return false
		}
	}
	return true
}
