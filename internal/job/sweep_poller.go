package job

import (
	"context"
	"log"
	"time"

	"quotewatch/internal/scanner"

	"go.opentelemetry.io/otel/trace"
)

const defaultSweepInterval = 2 * time.Minute

// Sweeper runs one evaluation pass over all active rules.
type Sweeper interface {
	SweepAll(ctx context.Context) (scanner.SweepStats, error)
}

// SweepPoller drives the periodic rule sweep.
type SweepPoller struct {
	tracer   trace.Tracer
	sweeper  Sweeper
	interval time.Duration
}

func NewSweepPoller(tracer trace.Tracer, sweeper Sweeper, interval time.Duration) *SweepPoller {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SweepPoller{
		tracer:   tracer,
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start sweeps immediately and then on every tick. Blocks until ctx is cancelled.
func (p *SweepPoller) Start(ctx context.Context) {
	if p.sweeper == nil {
		log.Println("Sweep poller disabled: no scanner")
		<-ctx.Done()
		return
	}

	log.Println("Sweep poller starting...")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweep poller stopped")
			return
		case <-ticker.C:
			p.runSweep(ctx)
		}
	}
}

func (p *SweepPoller) runSweep(ctx context.Context) {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "sweep-job.run")
		defer span.End()
	}

	stats, err := p.sweeper.SweepAll(ctx)
	if err != nil {
		log.Printf("rule sweep error: %v", err)
		return
	}
	if stats.Triggered > 0 || stats.ProviderErrors > 0 {
		log.Printf("rule sweep: %d symbols, %d rules, %d triggered, %d provider errors",
			stats.SymbolsScanned, stats.RulesEvaluated, stats.Triggered, stats.ProviderErrors)
	}
}
