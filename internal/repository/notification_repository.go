package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type NotificationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewNotificationRepository(pool PgxPool, tracer trace.Tracer) *NotificationRepository {
	return &NotificationRepository{pool: pool, tracer: tracer}
}

func (r *NotificationRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_owner_created ON notifications (owner_id, created_at DESC);
	`)
	return err
}

func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	_, span := r.tracer.Start(ctx, "notification-repo.insert")
	defer span.End()

	data, err := json.Marshal(orEmptyMap(n.Data))
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}

	out := *n
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notifications (owner_id, title, message, category, priority, read, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		n.OwnerID, n.Title, n.Message, n.Category, string(n.Priority), n.Read, data,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *NotificationRepository) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	_, span := r.tracer.Start(ctx, "notification-repo.list")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT id, owner_id, title, message, category, priority, read, data, created_at
		FROM notifications WHERE owner_id = $1`
	args := []any{filter.OwnerID}
	if filter.UnreadOnly {
		query += ` AND read = FALSE`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var priority string
		var data []byte
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Message, &n.Category,
			&priority, &n.Read, &data, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Priority = domain.Priority(priority)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode data for notification %d: %w", n.ID, err)
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead flips the read flag; scoped to the owner so one user cannot touch
// another's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, ownerID string) (bool, error) {
	_, span := r.tracer.Start(ctx, "notification-repo.mark-read")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NotificationRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "notification-repo.delete-created-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
