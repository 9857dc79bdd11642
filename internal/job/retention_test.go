package job

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

type stubNotificationCleaner struct {
	days    []int
	removed int64
	err     error
}

func (s *stubNotificationCleaner) CleanupOld(ctx context.Context, olderThanDays int) (int64, error) {
	s.days = append(s.days, olderThanDays)
	return s.removed, s.err
}

type stubRuleCleaner struct {
	days []int
	err  error
}

func (s *stubRuleCleaner) CleanupTriggered(ctx context.Context, olderThanDays int) (int64, error) {
	s.days = append(s.days, olderThanDays)
	return 0, s.err
}

func TestRetentionRunsBothCleanups(t *testing.T) {
	notifs := &stubNotificationCleaner{removed: 4}
	rules := &stubRuleCleaner{}
	job := NewRetention(trace.NewNoopTracerProvider().Tracer("test"), notifs, rules, 30, 15)

	job.runCleanup(context.Background())

	if len(notifs.days) != 1 || notifs.days[0] != 30 {
		t.Fatalf("unexpected notification cleanup calls: %v", notifs.days)
	}
	if len(rules.days) != 1 || rules.days[0] != 15 {
		t.Fatalf("unexpected rule cleanup calls: %v", rules.days)
	}
}

func TestRetentionNotificationErrorDoesNotBlockRules(t *testing.T) {
	notifs := &stubNotificationCleaner{err: errors.New("db down")}
	rules := &stubRuleCleaner{}
	job := NewRetention(trace.NewNoopTracerProvider().Tracer("test"), notifs, rules, 30, 30)

	job.runCleanup(context.Background())

	if len(rules.days) != 1 {
		t.Fatal("rule cleanup must still run after a notification cleanup error")
	}
}

func TestRetentionDefaultsDays(t *testing.T) {
	job := NewRetention(trace.NewNoopTracerProvider().Tracer("test"), &stubNotificationCleaner{}, &stubRuleCleaner{}, 0, -1)
	if job.notificationDays != 30 || job.triggeredRuleDays != 30 {
		t.Fatalf("expected 30 day defaults, got %d and %d", job.notificationDays, job.triggeredRuleDays)
	}
}
