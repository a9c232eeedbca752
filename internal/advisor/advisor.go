// Package advisor turns market prompt text into a trading decision through a
// chat model. It never places orders.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"alpha-arena/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const systemPrompt = "You are a professional quantitative trading analyst. Give a trading decision based on the market data."

// FallbackResponse is returned by Call when the model cannot be reached.
const FallbackResponse = `{"symbol": null, "action": "HOLD", "confidence": 0.0, "rationale": "API call failed"}`

const decisionInstructions = `Pick at most one instrument to act on and answer with a single JSON object:
{"symbol": "<SYMBOL or null>", "action": "BUY|SELL|HOLD", "confidence": <0.0-1.0>, "rationale": "<short reason>"}

Market data:
`

type AdvisorService struct {
	tracer trace.Tracer
	llm    LLMClient
	name   string
}

func NewAdvisorService(tracer trace.Tracer, llm LLMClient, name string) *AdvisorService {
	return &AdvisorService{tracer: tracer, llm: llm, name: name}
}

func (s *AdvisorService) Name() string {
	return s.name
}

// Call sends prompt to the model and returns its raw text, or
// FallbackResponse on any failure.
func (s *AdvisorService) Call(ctx context.Context, prompt string) string {
	ctx, span := s.tracer.Start(ctx, "advisor-service.call")
	defer span.End()
	span.SetAttributes(attribute.String("model", s.name))

	if s.llm == nil {
		return FallbackResponse
	}
	reply, err := s.llm.ChatCompletion(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		log.Printf("advisor %s call failed: %v", s.name, err)
		return FallbackResponse
	}
	return reply
}

// Decide wraps market text with the decision instructions and parses the
// reply. Unparseable replies become HOLD.
func (s *AdvisorService) Decide(ctx context.Context, marketText string) domain.Decision {
	reply := s.Call(ctx, BuildDecisionPrompt(marketText))
	decision, err := ParseDecision(reply)
	if err != nil {
		log.Printf("advisor %s reply not parseable: %v", s.name, err)
	}
	return decision
}

func BuildDecisionPrompt(marketText string) string {
	return decisionInstructions + marketText
}

type rawDecision struct {
	Symbol     *string  `json:"symbol"`
	Action     string   `json:"action"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// ParseDecision extracts the first JSON object from text, tolerating markdown
// fences and surrounding prose. Unknown actions map to HOLD and confidence is
// clamped to [0, 1].
func ParseDecision(text string) (domain.Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return domain.HoldDecision("no decision in model reply"), fmt.Errorf("no json object found")
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return domain.HoldDecision("malformed model reply"), fmt.Errorf("decode decision: %w", err)
	}

	decision := domain.Decision{
		Action:    domain.DecisionAction(strings.ToUpper(strings.TrimSpace(raw.Action))),
		Rationale: strings.TrimSpace(raw.Rationale),
	}
	switch decision.Action {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
	default:
		decision.Action = domain.ActionHold
	}
	if raw.Symbol != nil {
		decision.Symbol = domain.SymbolFor(*raw.Symbol)
	}
	if raw.Confidence != nil {
		decision.Confidence = min(1, max(0, *raw.Confidence))
	}
	return decision, nil
}
