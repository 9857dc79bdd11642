package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const retentionTick = time.Hour

// NotificationCleaner removes notifications past their retention window.
type NotificationCleaner interface {
	CleanupOld(ctx context.Context, olderThanDays int) (int64, error)
}

// RuleCleaner removes triggered rules that were never re-armed.
type RuleCleaner interface {
	CleanupTriggered(ctx context.Context, olderThanDays int) (int64, error)
}

// Retention prunes stale notifications and long-triggered rules.
type Retention struct {
	tracer            trace.Tracer
	notifications     NotificationCleaner
	rules             RuleCleaner
	notificationDays  int
	triggeredRuleDays int
}

func NewRetention(tracer trace.Tracer, notifications NotificationCleaner, rules RuleCleaner, notificationDays, triggeredRuleDays int) *Retention {
	if notificationDays <= 0 {
		notificationDays = 30
	}
	if triggeredRuleDays <= 0 {
		triggeredRuleDays = 30
	}
	return &Retention{
		tracer:            tracer,
		notifications:     notifications,
		rules:             rules,
		notificationDays:  notificationDays,
		triggeredRuleDays: triggeredRuleDays,
	}
}

// Start runs one cleanup immediately and then hourly. Blocks until ctx is cancelled.
func (j *Retention) Start(ctx context.Context) {
	if j.notifications == nil && j.rules == nil {
		<-ctx.Done()
		return
	}

	log.Println("Retention job starting...")
	ticker := time.NewTicker(retentionTick)
	defer ticker.Stop()

	j.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Retention job stopped")
			return
		case <-ticker.C:
			j.runCleanup(ctx)
		}
	}
}

func (j *Retention) runCleanup(ctx context.Context) {
	if j.tracer != nil {
		var span trace.Span
		ctx, span = j.tracer.Start(ctx, "retention-job.cleanup")
		defer span.End()
	}

	if j.notifications != nil {
		removed, err := j.notifications.CleanupOld(ctx, j.notificationDays)
		if err != nil {
			log.Printf("notification cleanup error: %v", err)
		} else if removed > 0 {
			log.Printf("notification cleanup removed %d record(s)", removed)
		}
	}

	if j.rules != nil {
		removed, err := j.rules.CleanupTriggered(ctx, j.triggeredRuleDays)
		if err != nil {
			log.Printf("triggered rule cleanup error: %v", err)
		} else if removed > 0 {
			log.Printf("triggered rule cleanup removed %d rule(s)", removed)
		}
	}
}
