package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports every violated constraint of a rule or preference
// spec, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ProviderError wraps a Market Data Provider failure for one symbol. The
// symbol's rules are skipped for the sweep; the next sweep retries naturally.
type ProviderError struct {
	Symbol string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("market data provider failed for %s: %v", e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StoreError wraps a Persistent Store failure. A failed trigger write leaves
// the rule Active, so the next sweep re-evaluates it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError wraps a Delivery Channel failure. Logged only; never affects
// the persisted notification or rule state.
type DeliveryError struct {
	OwnerID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to owner %s failed: %v", e.OwnerID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
