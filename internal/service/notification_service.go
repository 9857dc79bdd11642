package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id int64, ownerID string) (bool, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PreferenceRepository interface {
	Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error)
	Upsert(ctx context.Context, pref *domain.NotificationPreference) error
}

// DeliveryChannel is the push surface. Fire-and-forget: failures are logged,
// never retried synchronously, and never roll back the persisted notification.
type DeliveryChannel interface {
	Send(ctx context.Context, ownerID, title, body string, data map[string]string) error
}

// NotificationService decides whether a trigger event reaches the owner and
// records the resulting notification.
type NotificationService struct {
	tracer        trace.Tracer
	notifications NotificationRepository
	preferences   PreferenceRepository
	channel       DeliveryChannel
	now           func() time.Time
}

func NewNotificationService(
	tracer trace.Tracer,
	notifications NotificationRepository,
	preferences PreferenceRepository,
	channel DeliveryChannel,
) *NotificationService {
	return &NotificationService{
		tracer:        tracer,
		notifications: notifications,
		preferences:   preferences,
		channel:       channel,
		now:           time.Now,
	}
}

// GetPreferences returns the owner's stored preference, creating the default
// record on first access.
func (s *NotificationService) GetPreferences(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	ctx, span := s.tracer.Start(ctx, "notification-service.get-preferences")
	defer span.End()

	pref, err := s.preferences.Get(ctx, ownerID)
	if err != nil {
		return nil, &domain.StoreError{Op: "get preferences", Err: err}
	}
	if pref != nil {
		return pref, nil
	}

	pref = domain.DefaultPreference(ownerID)
	if err := s.preferences.Upsert(ctx, pref); err != nil {
		return nil, &domain.StoreError{Op: "create default preferences", Err: err}
	}
	return pref, nil
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, pref *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	ctx, span := s.tracer.Start(ctx, "notification-service.update-preferences")
	defer span.End()

	var violations []string
	if pref.OwnerID == "" {
		violations = append(violations, "owner id is required")
	}
	if pref.Timezone != "" {
		if _, err := time.LoadLocation(pref.Timezone); err != nil {
			violations = append(violations, fmt.Sprintf("unknown timezone %q", pref.Timezone))
		}
	}
	for _, clock := range []string{pref.QuietHoursStart, pref.QuietHoursEnd} {
		if clock == "" {
			continue
		}
		if _, ok := parseClock(clock); !ok {
			violations = append(violations, fmt.Sprintf("quiet hours value %q is not HH:MM", clock))
		}
	}
	if (pref.QuietHoursStart == "") != (pref.QuietHoursEnd == "") {
		violations = append(violations, "quiet hours need both a start and an end")
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	if pref.Timezone == "" {
		pref.Timezone = "UTC"
	}
	if err := s.preferences.Upsert(ctx, pref); err != nil {
		return nil, &domain.StoreError{Op: "update preferences", Err: err}
	}
	return pref, nil
}

// ShouldNotify reports whether a trigger in the given category may reach the
// owner's delivery channel at the given instant. Quiet hours are evaluated in
// the owner's timezone and may wrap midnight.
//
// Dispatch applies the category check earlier and on its own, because a
// disabled category drops the event before anything is persisted, while quiet
// hours only hold back the push.
func ShouldNotify(pref *domain.NotificationPreference, category string, at time.Time) bool {
	if !pref.CategoryEnabled(category) {
		return false
	}
	return !inQuietHours(pref, at)
}

func inQuietHours(pref *domain.NotificationPreference, at time.Time) bool {
	start, okStart := parseClock(pref.QuietHoursStart)
	end, okEnd := parseClock(pref.QuietHoursEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start < end {
		return cur >= start && cur < end
	}
	// Window wraps midnight: [start,24:00) plus [0:00,end).
	return cur >= start || cur < end
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(clock string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// Dispatch records a notification for the trigger event and pushes it when
// the owner's preferences allow. A disabled category drops the event
// entirely; quiet hours suppress delivery but keep the in-app record.
func (s *NotificationService) Dispatch(ctx context.Context, event domain.TriggerEvent) (*domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification-service.dispatch")
	defer span.End()

	pref, err := s.GetPreferences(ctx, event.OwnerID)
	if err != nil {
		return nil, err
	}

	if !pref.CategoryEnabled(event.Category) {
		return nil, nil
	}

	priority := event.Priority
	if !priority.IsValid() {
		priority = domain.PriorityMedium
	}

	notification := &domain.Notification{
		OwnerID:  event.OwnerID,
		Title:    fmt.Sprintf("Alert triggered: %s", event.Symbol),
		Message:  fmt.Sprintf("%s (observed %.2f)", event.ConditionSummary, event.ObservedValue),
		Category: event.Category,
		Priority: priority,
		Data: map[string]string{
			"rule_id":        strconv.FormatInt(event.RuleID, 10),
			"symbol":         event.Symbol,
			"observed_value": strconv.FormatFloat(event.ObservedValue, 'f', -1, 64),
		},
	}

	persisted, err := s.notifications.Insert(ctx, notification)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert notification", Err: err}
	}

	if s.channel != nil && pref.PushEnabled && ShouldNotify(pref, event.Category, s.now()) {
		if err := s.channel.Send(ctx, event.OwnerID, persisted.Title, persisted.Message, persisted.Data); err != nil {
			log.Printf("delivery failed for rule %d: %v", event.RuleID, err)
		}
	}
	return persisted, nil
}

func (s *NotificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification-service.list")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	out, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, &domain.StoreError{Op: "list notifications", Err: err}
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64, ownerID string) error {
	ctx, span := s.tracer.Start(ctx, "notification-service.mark-read")
	defer span.End()

	ok, err := s.notifications.MarkRead(ctx, id, ownerID)
	if err != nil {
		return &domain.StoreError{Op: "mark notification read", Err: err}
	}
	if !ok {
		return &domain.NotFoundError{Resource: "notification", ID: id}
	}
	return nil
}

// CleanupOld removes notifications past the retention horizon.
func (s *NotificationService) CleanupOld(ctx context.Context, olderThanDays int) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "notification-service.cleanup-old")
	defer span.End()

	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := s.notifications.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, &domain.StoreError{Op: "cleanup notifications", Err: err}
	}
	return removed, nil
}
