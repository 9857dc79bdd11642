package condition

import (
	"fmt"
	"math"
	"strings"

	"quotewatch/internal/domain"
)

// Sample field names usable by composite sub-conditions. Any other field is
// looked up in the sample's indicator map.
const (
	FieldPrice         = "price"
	FieldVolume        = "volume"
	FieldChangePercent = "change_percent"
)

// Evaluate reports whether the rule's condition holds for the sample. prior is
// the rule's previously observed value, used by crossing conditions; when it
// is nil, cross_above/cross_below degrade to plain above/below. Unknown
// kind/operator combinations evaluate to false, never panic.
func Evaluate(rule *domain.AlertRule, sample *domain.MarketSample, prior *float64) bool {
	if rule == nil || sample == nil {
		return false
	}

	switch rule.Kind {
	case domain.RuleKindPrice, domain.RuleKindVolume, domain.RuleKindTechnical:
		value, ok := ObservedValue(rule, sample)
		if !ok {
			return false
		}
		return compare(rule.Condition, value, rule.TargetValue, rule.UpperValue, prior)
	case domain.RuleKindComposite:
		return evaluateComposite(rule, sample)
	default:
		return false
	}
}

// ObservedValue extracts the sample value a rule is judged against. For
// technical rules a missing indicator yields ok=false.
func ObservedValue(rule *domain.AlertRule, sample *domain.MarketSample) (float64, bool) {
	switch rule.Kind {
	case domain.RuleKindPrice, domain.RuleKindComposite:
		return sample.Price, true
	case domain.RuleKindVolume:
		return sample.Volume, true
	case domain.RuleKindTechnical:
		name := rule.Metadata[domain.MetadataIndicator]
		if name == "" || sample.Indicators == nil {
			return 0, false
		}
		value, ok := sample.Indicators[name]
		if !ok || math.IsNaN(value) {
			return 0, false
		}
		return value, true
	default:
		return 0, false
	}
}

func compare(op domain.ConditionType, value, target float64, upper, prior *float64) bool {
	switch op {
	case domain.ConditionAbove:
		return value > target
	case domain.ConditionBelow:
		return value < target
	case domain.ConditionEquals:
		return math.Abs(value-target) < domain.EqualsTolerance
	case domain.ConditionCrossAbove:
		if prior == nil {
			return value > target
		}
		return *prior <= target && value > target
	case domain.ConditionCrossBelow:
		if prior == nil {
			return value < target
		}
		return *prior >= target && value < target
	case domain.ConditionBetween:
		if upper == nil {
			return false
		}
		return value >= target && value <= *upper
	default:
		return false
	}
}

func evaluateComposite(rule *domain.AlertRule, sample *domain.MarketSample) bool {
	if len(rule.SubConditions) == 0 {
		return false
	}

	for _, sub := range rule.SubConditions {
		matched := evaluateSub(sub, sample)
		if rule.Logic == domain.LogicOr {
			if matched {
				return true
			}
			continue
		}
		// AND is the default combine mode.
		if !matched {
			return false
		}
	}
	return rule.Logic != domain.LogicOr
}

// evaluateSub judges one composite leg. Crossing operators carry no prior
// state inside a composite and fall back to above/below.
func evaluateSub(sub domain.SubCondition, sample *domain.MarketSample) bool {
	value, ok := fieldValue(sub.Field, sample)
	if !ok {
		return false
	}
	return compare(sub.Operator, value, sub.Value, sub.UpperValue, nil)
}

func fieldValue(field string, sample *domain.MarketSample) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldPrice:
		return sample.Price, true
	case FieldVolume:
		return sample.Volume, true
	case FieldChangePercent:
		return sample.ChangePercent, true
	case "":
		return 0, false
	default:
		if sample.Indicators == nil {
			return 0, false
		}
		value, ok := sample.Indicators[strings.ToLower(strings.TrimSpace(field))]
		return value, ok
	}
}

// Describe renders a short human-readable summary of the rule's condition,
// used in trigger events and notification messages.
func Describe(rule *domain.AlertRule) string {
	if rule == nil {
		return ""
	}

	switch rule.Kind {
	case domain.RuleKindComposite:
		logic := rule.Logic
		if logic == "" {
			logic = domain.LogicAnd
		}
		return fmt.Sprintf("%s composite (%s, %d conditions)", rule.Symbol, logic, len(rule.SubConditions))
	case domain.RuleKindTechnical:
		return fmt.Sprintf("%s %s %s %s", rule.Symbol, rule.Metadata[domain.MetadataIndicator], describeOp(rule.Condition), describeTarget(rule))
	default:
		return fmt.Sprintf("%s %s %s %s", rule.Symbol, rule.Kind, describeOp(rule.Condition), describeTarget(rule))
	}
}

func describeOp(op domain.ConditionType) string {
	switch op {
	case domain.ConditionCrossAbove:
		return "crosses above"
	case domain.ConditionCrossBelow:
		return "crosses below"
	default:
		return string(op)
	}
}

func describeTarget(rule *domain.AlertRule) string {
	if rule.Condition == domain.ConditionBetween && rule.UpperValue != nil {
		return fmt.Sprintf("%.2f and %.2f", rule.TargetValue, *rule.UpperValue)
	}
	return fmt.Sprintf("%.2f", rule.TargetValue)
}
