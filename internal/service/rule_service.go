package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const defaultCooldownMinutes = 60

type RuleRepository interface {
	Insert(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error)
	GetByID(ctx context.Context, id int64) (*domain.AlertRule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.AlertRule, error)
	ListActive(ctx context.Context) ([]*domain.AlertRule, error)
	ListActiveBySymbol(ctx context.Context, symbol string) ([]*domain.AlertRule, error)
	SetState(ctx context.Context, id int64, from, to domain.RuleState) (bool, error)
	MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error)
	Rearm(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CreateRuleInput is the caller-facing rule definition; cooldown defaults
// to 60 minutes when omitted.
type CreateRuleInput struct {
	OwnerID         string                `json:"-"`
	Symbol          string                `json:"symbol"`
	Kind            domain.RuleKind       `json:"kind"`
	Condition       domain.ConditionType  `json:"condition_type"`
	TargetValue     float64               `json:"target_value"`
	UpperValue      *float64              `json:"upper_value,omitempty"`
	CooldownMinutes *int                  `json:"cooldown_minutes,omitempty"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
	SubConditions   []domain.SubCondition `json:"sub_conditions,omitempty"`
	Logic           domain.CompositeLogic `json:"logic,omitempty"`
}

// RuleService owns rule CRUD and state transitions.
type RuleService struct {
	tracer trace.Tracer
	repo   RuleRepository
	now    func() time.Time
}

func NewRuleService(tracer trace.Tracer, repo RuleRepository) *RuleService {
	return &RuleService{tracer: tracer, repo: repo, now: time.Now}
}

// Create validates the input, collecting every violation before failing, and
// stores the rule in state Active.
func (s *RuleService) Create(ctx context.Context, input CreateRuleInput) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.create")
	defer span.End()

	input.Symbol = strings.ToUpper(strings.TrimSpace(input.Symbol))
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}

	cooldown := defaultCooldownMinutes
	if input.CooldownMinutes != nil {
		cooldown = *input.CooldownMinutes
	}

	rule := &domain.AlertRule{
		OwnerID:         input.OwnerID,
		Symbol:          input.Symbol,
		Kind:            input.Kind,
		Condition:       input.Condition,
		TargetValue:     input.TargetValue,
		UpperValue:      input.UpperValue,
		CooldownMinutes: cooldown,
		State:           domain.RuleStateActive,
		Metadata:        input.Metadata,
		SubConditions:   input.SubConditions,
		Logic:           input.Logic,
	}

	out, err := s.repo.Insert(ctx, rule)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert rule", Err: err}
	}
	return out, nil
}

func validateRuleInput(input CreateRuleInput) error {
	var violations []string

	if input.OwnerID == "" {
		violations = append(violations, "owner id is required")
	}
	if input.Symbol == "" {
		violations = append(violations, "symbol must not be empty")
	}
	if !input.Kind.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown rule kind %q", input.Kind))
	}
	if input.CooldownMinutes != nil && *input.CooldownMinutes < 0 {
		violations = append(violations, "cooldown minutes must not be negative")
	}

	if input.Kind == domain.RuleKindComposite {
		if len(input.SubConditions) == 0 {
			violations = append(violations, "composite rule needs at least one sub-condition")
		}
		if input.Logic != domain.LogicAnd && input.Logic != domain.LogicOr {
			violations = append(violations, `composite logic must be "AND" or "OR"`)
		}
		for i, sub := range input.SubConditions {
			if strings.TrimSpace(sub.Field) == "" {
				violations = append(violations, fmt.Sprintf("sub-condition %d: field is required", i+1))
			}
			if !sub.Operator.IsValid() {
				violations = append(violations, fmt.Sprintf("sub-condition %d: unknown operator %q", i+1, sub.Operator))
			}
			if sub.Operator == domain.ConditionBetween && (sub.UpperValue == nil || *sub.UpperValue <= sub.Value) {
				violations = append(violations, fmt.Sprintf("sub-condition %d: between needs an upper bound greater than the lower", i+1))
			}
		}
	} else {
		if !input.Condition.IsValid() {
			violations = append(violations, fmt.Sprintf("unknown condition type %q", input.Condition))
		}
		if input.TargetValue <= 0 {
			violations = append(violations, "target value must be greater than zero")
		}
		if input.Condition == domain.ConditionBetween {
			if input.UpperValue == nil {
				violations = append(violations, "between condition needs an upper value")
			} else if *input.UpperValue <= input.TargetValue {
				violations = append(violations, "upper value must be greater than target value")
			}
		}
		if input.Kind == domain.RuleKindTechnical && strings.TrimSpace(input.Metadata[domain.MetadataIndicator]) == "" {
			violations = append(violations, "technical rule needs an indicator name in metadata")
		}
	}

	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

func (s *RuleService) Get(ctx context.Context, id int64) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.get")
	defer span.End()

	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) ListByOwner(ctx context.Context, ownerID string) ([]*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.list-by-owner")
	defer span.End()

	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *RuleService) ListActive(ctx context.Context) ([]*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.list-active")
	defer span.End()

	return s.repo.ListActive(ctx)
}

func (s *RuleService) ListActiveBySymbol(ctx context.Context, symbol string) ([]*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.list-active-by-symbol")
	defer span.End()

	return s.repo.ListActiveBySymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

// Toggle flips Active to Inactive and back. Triggered rules are rejected;
// the only way out of Triggered is an explicit Rearm.
func (s *RuleService) Toggle(ctx context.Context, id int64) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.toggle")
	defer span.End()

	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var next domain.RuleState
	switch rule.State {
	case domain.RuleStateActive:
		next = domain.RuleStateInactive
	case domain.RuleStateInactive:
		next = domain.RuleStateActive
	default:
		return nil, domain.NewValidationError("triggered rules cannot be toggled; re-arm them instead")
	}

	ok, err := s.repo.SetState(ctx, id, rule.State, next)
	if err != nil {
		return nil, &domain.StoreError{Op: "toggle rule", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("rule %d changed state concurrently", id)
	}
	rule.State = next
	return rule, nil
}

// Rearm returns a Triggered rule to Active, clearing its trigger timestamp.
func (s *RuleService) Rearm(ctx context.Context, id int64) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.rearm")
	defer span.End()

	ok, err := s.repo.Rearm(ctx, id)
	if err != nil {
		return nil, &domain.StoreError{Op: "rearm rule", Err: err}
	}
	if !ok {
		rule, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domain.NewValidationError(
			fmt.Sprintf("only triggered rules can be re-armed; rule %d is %s", id, rule.State))
	}
	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "rule-service.delete")
	defer span.End()

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return &domain.StoreError{Op: "delete rule", Err: err}
	}
	if !ok {
		return &domain.NotFoundError{Resource: "alert rule", ID: id}
	}
	return nil
}

// MarkTriggered is the scanner-facing concurrency guard: it reports true only
// for the caller that wins the Active to Triggered transition.
func (s *RuleService) MarkTriggered(ctx context.Context, id int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.mark-triggered")
	defer span.End()

	ok, err := s.repo.MarkTriggered(ctx, id, s.now().UTC())
	if err != nil {
		return false, &domain.StoreError{Op: "mark rule triggered", Err: err}
	}
	return ok, nil
}

// CleanupTriggered deletes Triggered rules whose last trigger precedes the
// retention horizon; returns the count removed.
func (s *RuleService) CleanupTriggered(ctx context.Context, olderThanDays int) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "rule-service.cleanup-triggered")
	defer span.End()

	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := s.repo.DeleteTriggeredBefore(ctx, cutoff)
	if err != nil {
		return 0, &domain.StoreError{Op: "cleanup triggered rules", Err: err}
	}
	return removed, nil
}
