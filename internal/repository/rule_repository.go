package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quotewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RuleRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRuleRepository(pool PgxPool, tracer trace.Tracer) *RuleRepository {
	return &RuleRepository{pool: pool, tracer: tracer}
}

func (r *RuleRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alert_rules (
			id BIGSERIAL PRIMARY KEY,
			owner_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			condition_type TEXT NOT NULL,
			target_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			upper_value DOUBLE PRECISION,
			cooldown_minutes INT NOT NULL DEFAULT 60,
			state TEXT NOT NULL DEFAULT 'active',
			trigger_count INT NOT NULL DEFAULT 0,
			last_triggered_at TIMESTAMPTZ,
			metadata JSONB NOT NULL DEFAULT '{}',
			sub_conditions JSONB NOT NULL DEFAULT '[]',
			logic TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_alert_rules_owner ON alert_rules (owner_id);
		CREATE INDEX IF NOT EXISTS idx_alert_rules_state_symbol ON alert_rules (state, symbol);
	`)
	return err
}

const ruleColumns = `id, owner_id, symbol, kind, condition_type, target_value, upper_value,
	cooldown_minutes, state, trigger_count, last_triggered_at, metadata, sub_conditions, logic,
	created_at, updated_at`

func (r *RuleRepository) Insert(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.insert")
	defer span.End()

	metadata, err := json.Marshal(orEmptyMap(rule.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	subs, err := json.Marshal(orEmptySubs(rule.SubConditions))
	if err != nil {
		return nil, fmt.Errorf("encode sub-conditions: %w", err)
	}

	out := *rule
	err = r.pool.QueryRow(ctx,
		`INSERT INTO alert_rules
			(owner_id, symbol, kind, condition_type, target_value, upper_value,
			 cooldown_minutes, state, metadata, sub_conditions, logic)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		rule.OwnerID, rule.Symbol, string(rule.Kind), string(rule.Condition),
		rule.TargetValue, rule.UpperValue, rule.CooldownMinutes, string(rule.State),
		metadata, subs, string(rule.Logic),
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*domain.AlertRule, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.get-by-id")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "alert rule", ID: id}
	}
	return rule, err
}

func (r *RuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.AlertRule, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.list-by-owner")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*domain.AlertRule, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.list-active")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE state = $1 ORDER BY symbol, id`,
		string(domain.RuleStateActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *RuleRepository) ListActiveBySymbol(ctx context.Context, symbol string) ([]*domain.AlertRule, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.list-active-by-symbol")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE state = $1 AND symbol = $2 ORDER BY id`,
		string(domain.RuleStateActive), symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// SetState transitions id from one state to another. The WHERE clause on the
// current state makes the transition a compare-and-set; ok is false when the
// rule is absent or no longer in the expected state.
func (r *RuleRepository) SetState(ctx context.Context, id int64, from, to domain.RuleState) (bool, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.set-state")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE alert_rules SET state = $3, updated_at = NOW() WHERE id = $1 AND state = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTriggered atomically moves an Active rule to Triggered, bumping its
// trigger count and stamping the trigger time. Exactly one of two concurrent
// callers observes ok=true.
func (r *RuleRepository) MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.mark-triggered")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE alert_rules
		 SET state = $2, trigger_count = trigger_count + 1, last_triggered_at = $3, updated_at = $3
		 WHERE id = $1 AND state = $4`,
		id, string(domain.RuleStateTriggered), at.UTC(), string(domain.RuleStateActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Rearm returns a Triggered rule to Active and clears its trigger timestamp
// so crossing baselines and the cooldown window restart clean.
func (r *RuleRepository) Rearm(ctx context.Context, id int64) (bool, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.rearm")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE alert_rules
		 SET state = $2, last_triggered_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND state = $3`,
		id, string(domain.RuleStateActive), string(domain.RuleStateTriggered))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) (bool, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.delete")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RuleRepository) DeleteTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "rule-repo.delete-triggered-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM alert_rules WHERE state = $1 AND last_triggered_at < $2`,
		string(domain.RuleStateTriggered), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRule(row pgx.Row) (*domain.AlertRule, error) {
	rule := &domain.AlertRule{}
	var kind, conditionType, state, logic string
	var metadata, subs []byte

	err := row.Scan(
		&rule.ID, &rule.OwnerID, &rule.Symbol, &kind, &conditionType,
		&rule.TargetValue, &rule.UpperValue, &rule.CooldownMinutes, &state,
		&rule.TriggerCount, &rule.LastTriggeredAt, &metadata, &subs, &logic,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Kind = domain.RuleKind(kind)
	rule.Condition = domain.ConditionType(conditionType)
	rule.State = domain.RuleState(state)
	rule.Logic = domain.CompositeLogic(logic)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rule.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for rule %d: %w", rule.ID, err)
		}
	}
	if len(subs) > 0 {
		if err := json.Unmarshal(subs, &rule.SubConditions); err != nil {
			return nil, fmt.Errorf("decode sub-conditions for rule %d: %w", rule.ID, err)
		}
	}
	return rule, nil
}

func scanRules(rows pgx.Rows) ([]*domain.AlertRule, error) {
	var rules []*domain.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySubs(s []domain.SubCondition) []domain.SubCondition {
	if s == nil {
		return []domain.SubCondition{}
	}
	return s
}
