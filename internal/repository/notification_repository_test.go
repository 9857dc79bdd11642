package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"quotewatch/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func newNotificationRepo(pool *stubPool) *NotificationRepository {
	return NewNotificationRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestNotificationInsertDefaultsUnread(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	pool := &stubPool{rowData: []any{int64(11), now}}
	repo := newNotificationRepo(pool)

	out, err := repo.Insert(context.Background(), &domain.Notification{
		OwnerID:  "user-1",
		Title:    "Alert triggered: PETR4",
		Message:  "PETR4 price above 35.00 (observed 36.00)",
		Category: "price",
		Priority: domain.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != 11 || out.Read {
		t.Fatalf("unexpected notification: %+v", out)
	}
	if len(pool.queryArgs) != 1 {
		t.Fatal("expected one insert")
	}
	if read := pool.queryArgs[0][5].(bool); read {
		t.Fatal("insert must persist read=false")
	}
}

func TestNotificationListUnreadOnly(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	pool := &stubPool{rowsData: [][]any{{
		int64(1), "user-1", "Alert triggered: PETR4", "PETR4 price above 35.00",
		"price", "high", false, []byte(`{"rule_id":"3"}`), now,
	}}}
	repo := newNotificationRepo(pool)

	out, err := repo.List(context.Background(), domain.NotificationFilter{
		OwnerID:    "user-1",
		UnreadOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(out))
	}
	if out[0].Priority != domain.PriorityHigh || out[0].Data["rule_id"] != "3" {
		t.Fatalf("unexpected payload: %+v", out[0])
	}
	if !strings.Contains(pool.querySQL[0], "read = FALSE") {
		t.Fatalf("unread filter missing from query: %s", pool.querySQL[0])
	}
}

func TestNotificationMarkReadScopedToOwner(t *testing.T) {
	pool := &stubPool{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := newNotificationRepo(pool)

	ok, err := repo.MarkRead(context.Background(), 5, "someone-else")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("marking another owner's notification must not report success")
	}
	if !strings.Contains(pool.execSQL[0], "AND owner_id = $2") {
		t.Fatalf("mark-read must be scoped to owner, got: %s", pool.execSQL[0])
	}
}

func TestNotificationDeleteCreatedBefore(t *testing.T) {
	pool := &stubPool{execTag: pgconn.NewCommandTag("DELETE 12")}
	repo := newNotificationRepo(pool)

	removed, err := repo.DeleteCreatedBefore(context.Background(), time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 12 {
		t.Fatalf("expected 12 removed, got %d", removed)
	}
}
