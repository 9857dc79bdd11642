package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quotewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type PreferenceRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPreferenceRepository(pool PgxPool, tracer trace.Tracer) *PreferenceRepository {
	return &PreferenceRepository{pool: pool, tracer: tracer}
}

func (r *PreferenceRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notification_preferences (
			owner_id TEXT PRIMARY KEY,
			push_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			by_category JSONB NOT NULL DEFAULT '{}',
			quiet_hours_start TEXT NOT NULL DEFAULT '',
			quiet_hours_end TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Get returns nil without error when the owner has no stored preference; the
// service layer creates defaults lazily.
func (r *PreferenceRepository) Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	_, span := r.tracer.Start(ctx, "preference-repo.get")
	defer span.End()

	pref := &domain.NotificationPreference{}
	var byCategory []byte
	err := r.pool.QueryRow(ctx,
		`SELECT owner_id, push_enabled, email_enabled, by_category,
		        quiet_hours_start, quiet_hours_end, timezone, updated_at
		 FROM notification_preferences WHERE owner_id = $1`, ownerID,
	).Scan(&pref.OwnerID, &pref.PushEnabled, &pref.EmailEnabled, &byCategory,
		&pref.QuietHoursStart, &pref.QuietHoursEnd, &pref.Timezone, &pref.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(byCategory) > 0 {
		if err := json.Unmarshal(byCategory, &pref.ByCategory); err != nil {
			return nil, fmt.Errorf("decode category toggles for %s: %w", ownerID, err)
		}
	}
	return pref, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	_, span := r.tracer.Start(ctx, "preference-repo.upsert")
	defer span.End()

	byCategory, err := json.Marshal(pref.ByCategory)
	if err != nil {
		return fmt.Errorf("encode category toggles: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO notification_preferences
			(owner_id, push_enabled, email_enabled, by_category, quiet_hours_start, quiet_hours_end, timezone, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (owner_id) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled,
			by_category = EXCLUDED.by_category,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()`,
		pref.OwnerID, pref.PushEnabled, pref.EmailEnabled, byCategory,
		pref.QuietHoursStart, pref.QuietHoursEnd, pref.Timezone)
	return err
}
