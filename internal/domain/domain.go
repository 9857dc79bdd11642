package domain

import "time"

type RuleState string

const (
	RuleStateActive    RuleState = "active"
	RuleStateInactive  RuleState = "inactive"
	RuleStateTriggered RuleState = "triggered"
)

func (s RuleState) IsValid() bool {
	return s == RuleStateActive || s == RuleStateInactive || s == RuleStateTriggered
}

type RuleKind string

const (
	RuleKindPrice     RuleKind = "price"
	RuleKindVolume    RuleKind = "volume"
	RuleKindTechnical RuleKind = "technical"
	RuleKindComposite RuleKind = "composite"
)

func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindPrice, RuleKindVolume, RuleKindTechnical, RuleKindComposite:
		return true
	}
	return false
}

type ConditionType string

const (
	ConditionAbove      ConditionType = "above"
	ConditionBelow      ConditionType = "below"
	ConditionEquals     ConditionType = "equals"
	ConditionCrossAbove ConditionType = "cross_above"
	ConditionCrossBelow ConditionType = "cross_below"
	ConditionBetween    ConditionType = "between"
)

func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionEquals,
		ConditionCrossAbove, ConditionCrossBelow, ConditionBetween:
		return true
	}
	return false
}

// EqualsTolerance is the absolute tolerance for "equals" comparisons.
const EqualsTolerance = 0.01

type CompositeLogic string

const (
	LogicAnd CompositeLogic = "AND"
	LogicOr  CompositeLogic = "OR"
)

// SubCondition is one leg of a composite rule. Field names a sample value
// (price, volume, change_percent) or an indicator key; UpperValue is set only
// for the between operator.
type SubCondition struct {
	Field      string        `json:"field"`
	Operator   ConditionType `json:"operator"`
	Value      float64       `json:"value"`
	UpperValue *float64      `json:"upper_value,omitempty"`
}

// MetadataIndicator is the metadata key naming the indicator a technical rule
// reads from the sample.
const MetadataIndicator = "indicator"

// MetadataPriority is the metadata key overriding the notification priority.
const MetadataPriority = "priority"

type AlertRule struct {
	ID              int64             `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Symbol          string            `json:"symbol"`
	Kind            RuleKind          `json:"kind"`
	Condition       ConditionType     `json:"condition_type"`
	TargetValue     float64           `json:"target_value"`
	UpperValue      *float64          `json:"upper_value,omitempty"`
	CooldownMinutes int               `json:"cooldown_minutes"`
	State           RuleState         `json:"state"`
	TriggerCount    int               `json:"trigger_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	SubConditions   []SubCondition    `json:"sub_conditions,omitempty"`
	Logic           CompositeLogic    `json:"logic,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// InCooldown reports whether the rule's last trigger is more recent than its
// cooldown window at the given instant.
func (r *AlertRule) InCooldown(at time.Time) bool {
	if r.LastTriggeredAt == nil || r.CooldownMinutes <= 0 {
		return false
	}
	return at.Before(r.LastTriggeredAt.Add(time.Duration(r.CooldownMinutes) * time.Minute))
}

// Category returns the notification category a rule's triggers belong to.
func (r *AlertRule) Category() string {
	return string(r.Kind)
}

// MarketSample is one observation of a symbol's market data. Samples are
// supplied per evaluation and never persisted by this engine.
type MarketSample struct {
	Symbol        string             `json:"symbol"`
	Price         float64            `json:"price"`
	Volume        float64            `json:"volume"`
	ChangePercent float64            `json:"change_percent"`
	Indicators    map[string]float64 `json:"indicators,omitempty"`
	ObservedAt    time.Time          `json:"observed_at"`
}

// TriggerEvent is created exactly once per rule transition into Triggered.
type TriggerEvent struct {
	RuleID           int64     `json:"rule_id"`
	OwnerID          string    `json:"owner_id"`
	Symbol           string    `json:"symbol"`
	ConditionSummary string    `json:"condition_summary"`
	ObservedValue    float64   `json:"observed_value"`
	Category         string    `json:"category"`
	Priority         Priority  `json:"priority"`
	TriggeredAt      time.Time `json:"triggered_at"`
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Notification struct {
	ID        int64             `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Priority  Priority          `json:"priority"`
	Read      bool              `json:"read"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type NotificationFilter struct {
	OwnerID    string
	UnreadOnly bool
	Limit      int
}

// NotificationPreference holds one owner's delivery settings. Quiet hours are
// "HH:MM" wall-clock strings in the owner's timezone; empty strings disable
// the window.
type NotificationPreference struct {
	OwnerID         string          `json:"owner_id"`
	PushEnabled     bool            `json:"push_enabled"`
	EmailEnabled    bool            `json:"email_enabled"`
	ByCategory      map[string]bool `json:"by_category"`
	QuietHoursStart string          `json:"quiet_hours_start"`
	QuietHoursEnd   string          `json:"quiet_hours_end"`
	Timezone        string          `json:"timezone"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DefaultPreference is the record created lazily on an owner's first access.
func DefaultPreference(ownerID string) *NotificationPreference {
	return &NotificationPreference{
		OwnerID:      ownerID,
		PushEnabled:  true,
		EmailEnabled: true,
		ByCategory: map[string]bool{
			string(RuleKindPrice):     true,
			string(RuleKindVolume):    true,
			string(RuleKindTechnical): true,
			string(RuleKindComposite): true,
		},
		Timezone: "UTC",
	}
}

// CategoryEnabled treats categories without an explicit toggle as enabled.
func (p *NotificationPreference) CategoryEnabled(category string) bool {
	if p.ByCategory == nil {
		return true
	}
	enabled, ok := p.ByCategory[category]
	if !ok {
		return true
	}
	return enabled
}
