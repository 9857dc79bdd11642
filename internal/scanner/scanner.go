package scanner

import (
	"context"
	"log"
	"sync"
	"time"

	"quotewatch/internal/condition"
	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RuleSource provides the rules a sweep evaluates and owns the triggered
// state transition.
type RuleSource interface {
	ListActive(ctx context.Context) ([]*domain.AlertRule, error)
	ListActiveBySymbol(ctx context.Context, symbol string) ([]*domain.AlertRule, error)
	MarkTriggered(ctx context.Context, id int64) (bool, error)
}

// QuoteSource fetches a fresh market sample for a symbol.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*domain.MarketSample, error)
}

// TriggerSink receives trigger events for matched rules.
type TriggerSink interface {
	Dispatch(ctx context.Context, event domain.TriggerEvent) (*domain.Notification, error)
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	SymbolsScanned int
	RulesEvaluated int
	Triggered      int
	ProviderErrors int
}

// Scanner groups active rules by symbol, fetches each symbol's quote once
// and evaluates every rule against it. Symbols are scanned concurrently;
// one provider failure never aborts the rest of the sweep. A matched rule
// is flipped to triggered through a compare-and-set so overlapping sweeps
// dispatch at most one event per trigger.
type Scanner struct {
	tracer        trace.Tracer
	rules         RuleSource
	quotes        QuoteSource
	sink          TriggerSink
	symbolTimeout time.Duration
	now           func() time.Time

	mu sync.Mutex
	// lastObserved keeps the value each rule saw on its previous
	// evaluation, which crossing conditions compare against.
	lastObserved map[int64]float64
}

func New(tracer trace.Tracer, rules RuleSource, quotes QuoteSource, sink TriggerSink, symbolTimeout time.Duration) *Scanner {
	if symbolTimeout <= 0 {
		symbolTimeout = 10 * time.Second
	}
	return &Scanner{
		tracer:        tracer,
		rules:         rules,
		quotes:        quotes,
		sink:          sink,
		symbolTimeout: symbolTimeout,
		now:           time.Now,
		lastObserved:  make(map[int64]float64),
	}
}

// SweepAll evaluates every active rule once, grouped by symbol.
func (s *Scanner) SweepAll(ctx context.Context) (SweepStats, error) {
	ctx, span := s.tracer.Start(ctx, "scanner.sweep-all")
	defer span.End()

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return SweepStats{}, err
	}

	bySymbol := make(map[string][]*domain.AlertRule)
	for _, rule := range rules {
		bySymbol[rule.Symbol] = append(bySymbol[rule.Symbol], rule)
	}

	var (
		wg      sync.WaitGroup
		statsMu sync.Mutex
		stats   SweepStats
	)
	stats.SymbolsScanned = len(bySymbol)

	for symbol, group := range bySymbol {
		wg.Add(1)
		go func(symbol string, group []*domain.AlertRule) {
			defer wg.Done()
			part := s.sweepGroup(ctx, symbol, group)
			statsMu.Lock()
			stats.RulesEvaluated += part.RulesEvaluated
			stats.Triggered += part.Triggered
			stats.ProviderErrors += part.ProviderErrors
			statsMu.Unlock()
		}(symbol, group)
	}
	wg.Wait()

	span.SetAttributes(
		attribute.Int("sweep.symbols", stats.SymbolsScanned),
		attribute.Int("sweep.rules", stats.RulesEvaluated),
		attribute.Int("sweep.triggered", stats.Triggered),
	)
	return stats, nil
}

// SweepSymbol evaluates only the active rules watching one symbol. The
// quote stream uses it to react to ticks without waiting for the next
// full sweep.
func (s *Scanner) SweepSymbol(ctx context.Context, symbol string) (SweepStats, error) {
	ctx, span := s.tracer.Start(ctx, "scanner.sweep-symbol")
	defer span.End()
	span.SetAttributes(attribute.String("sweep.symbol", symbol))

	rules, err := s.rules.ListActiveBySymbol(ctx, symbol)
	if err != nil {
		return SweepStats{}, err
	}
	if len(rules) == 0 {
		return SweepStats{}, nil
	}

	stats := s.sweepGroup(ctx, symbol, rules)
	stats.SymbolsScanned = 1
	return stats, nil
}

func (s *Scanner) sweepGroup(ctx context.Context, symbol string, rules []*domain.AlertRule) SweepStats {
	ctx, cancel := context.WithTimeout(ctx, s.symbolTimeout)
	defer cancel()

	var stats SweepStats
	sample, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		log.Printf("sweep: quote fetch failed for %s: %v", symbol, err)
		stats.ProviderErrors = 1
		return stats
	}

	for _, rule := range rules {
		stats.RulesEvaluated++
		if s.evaluateRule(ctx, rule, sample) {
			stats.Triggered++
		}
	}
	return stats
}

// evaluateRule reports whether the rule triggered and its event was
// dispatched.
func (s *Scanner) evaluateRule(ctx context.Context, rule *domain.AlertRule, sample *domain.MarketSample) bool {
	prior := s.priorValue(rule.ID)
	matched := condition.Evaluate(rule, sample, prior)

	if observed, ok := condition.ObservedValue(rule, sample); ok {
		s.rememberValue(rule.ID, observed)
	}

	if !matched {
		return false
	}
	if rule.InCooldown(s.now()) {
		return false
	}

	won, err := s.rules.MarkTriggered(ctx, rule.ID)
	if err != nil {
		log.Printf("sweep: mark triggered failed for rule %d: %v", rule.ID, err)
		return false
	}
	if !won {
		// Another sweep got there first.
		return false
	}

	observed, _ := condition.ObservedValue(rule, sample)
	event := domain.TriggerEvent{
		RuleID:           rule.ID,
		OwnerID:          rule.OwnerID,
		Symbol:           rule.Symbol,
		ConditionSummary: condition.Describe(rule),
		ObservedValue:    observed,
		Category:         rule.Category(),
		Priority:         domain.Priority(rule.Metadata[domain.MetadataPriority]),
		TriggeredAt:      s.now().UTC(),
	}
	if _, err := s.sink.Dispatch(ctx, event); err != nil {
		log.Printf("sweep: dispatch failed for rule %d: %v", rule.ID, err)
	}
	return true
}

func (s *Scanner) priorValue(ruleID int64) *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.lastObserved[ruleID]; ok {
		return &v
	}
	return nil
}

func (s *Scanner) rememberValue(ruleID int64, value float64) {
	s.mu.Lock()
	s.lastObserved[ruleID] = value
	s.mu.Unlock()
}

// Forget drops the remembered value for a rule, typically after the rule
// is deleted or re-armed.
func (s *Scanner) Forget(ruleID int64) {
	s.mu.Lock()
	delete(s.lastObserved, ruleID)
	s.mu.Unlock()
}
