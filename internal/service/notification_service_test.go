package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type fakeNotificationRepo struct {
	inserted []*domain.Notification
	nextID   int64
	readIDs  []int64
	failNext error
}

func (f *fakeNotificationRepo) Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.nextID++
	out := *n
	out.ID = f.nextID
	out.CreatedAt = time.Now().UTC()
	f.inserted = append(f.inserted, &out)
	return &out, nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	return f.inserted, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id int64, ownerID string) (bool, error) {
	for _, n := range f.inserted {
		if n.ID == id && n.OwnerID == ownerID {
			n.Read = true
			f.readIDs = append(f.readIDs, id)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotificationRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*domain.Notification
	var removed int64
	for _, n := range f.inserted {
		if n.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	f.inserted = kept
	return removed, nil
}

type fakePreferenceRepo struct {
	stored  map[string]*domain.NotificationPreference
	upserts int
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{stored: make(map[string]*domain.NotificationPreference)}
}

func (f *fakePreferenceRepo) Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	pref, ok := f.stored[ownerID]
	if !ok {
		return nil, nil
	}
	copied := *pref
	return &copied, nil
}

func (f *fakePreferenceRepo) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	f.upserts++
	copied := *pref
	f.stored[pref.OwnerID] = &copied
	return nil
}

type fakeChannel struct {
	sent    []string
	failErr error
}

func (f *fakeChannel) Send(ctx context.Context, ownerID, title, body string, data map[string]string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, ownerID+": "+title)
	return nil
}

func newNotificationService(
	notifs *fakeNotificationRepo,
	prefs *fakePreferenceRepo,
	channel DeliveryChannel,
) *NotificationService {
	return NewNotificationService(trace.NewNoopTracerProvider().Tracer("test"), notifs, prefs, channel)
}

func triggerEvent() domain.TriggerEvent {
	return domain.TriggerEvent{
		RuleID:           3,
		OwnerID:          "user-1",
		Symbol:           "PETR4",
		ConditionSummary: "PETR4 price above 35.00",
		ObservedValue:    36,
		Category:         "price",
		TriggeredAt:      time.Now().UTC(),
	}
}

func TestShouldNotifyQuietHoursWrapMidnight(t *testing.T) {
	pref := domain.DefaultPreference("user-1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "06:00"

	lateNight := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	if ShouldNotify(pref, "price", lateNight) {
		t.Fatal("23:30 lies inside the 22:00-06:00 window")
	}

	earlyMorning := time.Date(2026, 3, 10, 5, 59, 0, 0, time.UTC)
	if ShouldNotify(pref, "price", earlyMorning) {
		t.Fatal("05:59 lies inside the wrapped window")
	}

	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !ShouldNotify(pref, "price", noon) {
		t.Fatal("12:00 lies outside the window")
	}

	windowEnd := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	if !ShouldNotify(pref, "price", windowEnd) {
		t.Fatal("the window end is exclusive")
	}
}

func TestShouldNotifyHonorsTimezone(t *testing.T) {
	pref := domain.DefaultPreference("user-1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "06:00"
	pref.Timezone = "America/Sao_Paulo"

	// 02:30 UTC is 23:30 in Sao Paulo (UTC-3).
	at := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	if ShouldNotify(pref, "price", at) {
		t.Fatal("quiet hours must be evaluated in the owner's timezone")
	}
}

func TestShouldNotifyCategoryToggle(t *testing.T) {
	pref := domain.DefaultPreference("user-1")
	pref.ByCategory["volume"] = false

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if ShouldNotify(pref, "volume", at) {
		t.Fatal("disabled category must suppress notification")
	}
	if !ShouldNotify(pref, "price", at) {
		t.Fatal("other categories stay enabled")
	}
}

func TestDispatchPersistsAndDelivers(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	channel := &fakeChannel{}
	svc := newNotificationService(notifs, prefs, channel)

	out, err := svc.Dispatch(context.Background(), triggerEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.ID == 0 {
		t.Fatal("expected a persisted notification")
	}
	if out.Read {
		t.Fatal("new notifications start unread")
	}
	if out.Priority != domain.PriorityMedium {
		t.Fatalf("priority must default to medium, got %s", out.Priority)
	}
	if out.Category != "price" {
		t.Fatalf("category must match the rule kind, got %s", out.Category)
	}
	if len(channel.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(channel.sent))
	}
	if out.Data["rule_id"] != "3" || out.Data["symbol"] != "PETR4" {
		t.Fatalf("unexpected data payload: %+v", out.Data)
	}
}

func TestDispatchCreatesDefaultPreferenceLazily(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	svc := newNotificationService(notifs, prefs, &fakeChannel{})

	if _, err := svc.Dispatch(context.Background(), triggerEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs.upserts != 1 {
		t.Fatalf("expected default preference to be created once, got %d upserts", prefs.upserts)
	}
	if _, ok := prefs.stored["user-1"]; !ok {
		t.Fatal("default preference must be stored")
	}
}

func TestDispatchDisabledCategoryDropsEvent(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	pref := domain.DefaultPreference("user-1")
	pref.ByCategory["price"] = false
	prefs.Upsert(context.Background(), pref)
	prefs.upserts = 0
	channel := &fakeChannel{}
	svc := newNotificationService(notifs, prefs, channel)

	out, err := svc.Dispatch(context.Background(), triggerEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatal("disabled category must not record a notification")
	}
	if len(notifs.inserted) != 0 || len(channel.sent) != 0 {
		t.Fatal("nothing may be persisted or delivered")
	}
}

func TestDispatchQuietHoursRecordsWithoutDelivery(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	pref := domain.DefaultPreference("user-1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "06:00"
	prefs.Upsert(context.Background(), pref)
	channel := &fakeChannel{}
	svc := newNotificationService(notifs, prefs, channel)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC) }

	out, err := svc.Dispatch(context.Background(), triggerEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("quiet hours keep the in-app record")
	}
	if len(channel.sent) != 0 {
		t.Fatal("quiet hours must suppress delivery")
	}
}

func TestDispatchPushDisabledSkipsDelivery(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	pref := domain.DefaultPreference("user-1")
	pref.PushEnabled = false
	prefs.Upsert(context.Background(), pref)
	channel := &fakeChannel{}
	svc := newNotificationService(notifs, prefs, channel)

	out, err := svc.Dispatch(context.Background(), triggerEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("push toggle only affects delivery, not persistence")
	}
	if len(channel.sent) != 0 {
		t.Fatal("push disabled must skip the delivery channel")
	}
}

func TestDispatchDeliveryFailureKeepsNotification(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	prefs := newFakePreferenceRepo()
	channel := &fakeChannel{failErr: &domain.DeliveryError{OwnerID: "user-1", Err: fmt.Errorf("chat unreachable")}}
	svc := newNotificationService(notifs, prefs, channel)

	out, err := svc.Dispatch(context.Background(), triggerEvent())
	if err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
	if out == nil || len(notifs.inserted) != 1 {
		t.Fatal("notification must remain persisted after delivery failure")
	}
}

func TestDispatchRespectsPriorityMetadata(t *testing.T) {
	notifs := &fakeNotificationRepo{}
	svc := newNotificationService(notifs, newFakePreferenceRepo(), &fakeChannel{})

	event := triggerEvent()
	event.Priority = domain.PriorityCritical
	out, err := svc.Dispatch(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Priority != domain.PriorityCritical {
		t.Fatalf("expected critical priority, got %s", out.Priority)
	}
}

func TestUpdatePreferencesValidation(t *testing.T) {
	svc := newNotificationService(&fakeNotificationRepo{}, newFakePreferenceRepo(), nil)

	pref := domain.DefaultPreference("user-1")
	pref.Timezone = "Not/AZone"
	pref.QuietHoursStart = "25:99"
	if _, err := svc.UpdatePreferences(context.Background(), pref); err == nil {
		t.Fatal("expected validation failure")
	}

	pref = domain.DefaultPreference("user-1")
	pref.QuietHoursStart = "22:00"
	if _, err := svc.UpdatePreferences(context.Background(), pref); err == nil {
		t.Fatal("quiet hours start without end must fail")
	}

	pref = domain.DefaultPreference("user-1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "06:00"
	if _, err := svc.UpdatePreferences(context.Background(), pref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkReadUnknownNotification(t *testing.T) {
	svc := newNotificationService(&fakeNotificationRepo{}, newFakePreferenceRepo(), nil)

	err := svc.MarkRead(context.Background(), 42, "user-1")
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
}
