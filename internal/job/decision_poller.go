package job

import (
	"context"
	"log"
	"sync"
	"time"

	"alpha-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const defaultDecisionInterval = 5 * time.Minute

type MarketSnapshotter interface {
	GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord
	FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string
}

type Decider interface {
	Name() string
	Decide(ctx context.Context, marketText string) domain.Decision
}

type DecisionAlertSink interface {
	NotifyDecisions(ctx context.Context, decisions []domain.ModelDecision) error
}

// DecisionPoller periodically aggregates every instrument, renders the
// prompt and asks each configured model for a decision. Decisions are only
// logged and broadcast; no orders are placed.
type DecisionPoller struct {
	tracer   trace.Tracer
	market   MarketSnapshotter
	deciders []Decider
	sink     DecisionAlertSink
	interval time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest []domain.ModelDecision
}

func NewDecisionPoller(
	tracer trace.Tracer,
	market MarketSnapshotter,
	deciders []Decider,
	sink DecisionAlertSink,
	interval time.Duration,
) *DecisionPoller {
	if interval <= 0 {
		interval = defaultDecisionInterval
	}
	return &DecisionPoller{
		tracer:   tracer,
		market:   market,
		deciders: deciders,
		sink:     sink,
		interval: interval,
		now:      time.Now,
	}
}

// SetAlertSink replaces the decision sink. Call before Start.
func (p *DecisionPoller) SetAlertSink(sink DecisionAlertSink) {
	p.sink = sink
}

// Start runs a cycle immediately and then on every tick. Blocks until ctx is cancelled.
func (p *DecisionPoller) Start(ctx context.Context) {
	if p.market == nil || len(p.deciders) == 0 {
		log.Println("Decision poller disabled: no market service or models")
		<-ctx.Done()
		return
	}

	log.Printf("Decision poller starting (%d models, every %s)...", len(p.deciders), p.interval)
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Decision poller stopped")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs one aggregate -> prompt -> decide cycle.
func (p *DecisionPoller) RunOnce(ctx context.Context) []domain.ModelDecision {
	ctx, span := p.tracer.Start(ctx, "decision-poller.run-once")
	defer span.End()

	if p.market == nil || len(p.deciders) == 0 {
		return nil
	}

	records := p.market.GetAllData(ctx)
	prompt := p.market.FormatAllForPrompt(records)
	if prompt == "" {
		log.Println("decision cycle skipped: empty market prompt")
		return nil
	}

	decisions := make([]domain.ModelDecision, 0, len(p.deciders))
	for _, d := range p.deciders {
		if ctx.Err() != nil {
			return decisions
		}
		decision := d.Decide(ctx, prompt)
		decisions = append(decisions, domain.ModelDecision{
			Model:     d.Name(),
			Decision:  decision,
			DecidedAt: p.now().UTC(),
		})
		log.Printf("decision from %s: %s %s (confidence %.2f)", d.Name(), decision.Action, decision.Symbol, decision.Confidence)
	}

	if len(decisions) >= 2 {
		if domain.DecisionsAgree(decisions) {
			log.Println("models agree on decision")
		} else {
			log.Println("models disagree on decision")
		}
	}

	p.mu.Lock()
	p.latest = decisions
	p.mu.Unlock()

	if p.sink != nil {
		if err := p.sink.NotifyDecisions(ctx, decisions); err != nil {
			log.Printf("decision alert dispatch error: %v", err)
		}
	}
	return decisions
}

// Latest returns a copy of the decisions from the most recent cycle.
func (p *DecisionPoller) Latest() []domain.ModelDecision {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.ModelDecision(nil), p.latest...)
}
