package handler

import (
	"context"
	"time"

	"quotewatch/internal/domain"
	"quotewatch/internal/scanner"
	"quotewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memRuleRepo struct {
	rules  map[int64]*domain.AlertRule
	nextID int64
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{rules: make(map[int64]*domain.AlertRule), nextID: 1}
}

func (m *memRuleRepo) Insert(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	out := *rule
	out.ID = m.nextID
	out.CreatedAt = time.Now().UTC()
	out.UpdatedAt = out.CreatedAt
	m.nextID++
	m.rules[out.ID] = &out
	copied := out
	return &copied, nil
}

func (m *memRuleRepo) GetByID(ctx context.Context, id int64) (*domain.AlertRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "alert rule", ID: id}
	}
	copied := *rule
	return &copied, nil
}

func (m *memRuleRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.AlertRule, error) {
	var out []*domain.AlertRule
	for _, r := range m.rules {
		if r.OwnerID == ownerID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRuleRepo) ListActive(ctx context.Context) ([]*domain.AlertRule, error) {
	var out []*domain.AlertRule
	for _, r := range m.rules {
		if r.State == domain.RuleStateActive {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRuleRepo) ListActiveBySymbol(ctx context.Context, symbol string) ([]*domain.AlertRule, error) {
	var out []*domain.AlertRule
	for _, r := range m.rules {
		if r.State == domain.RuleStateActive && r.Symbol == symbol {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRuleRepo) SetState(ctx context.Context, id int64, from, to domain.RuleState) (bool, error) {
	rule, ok := m.rules[id]
	if !ok || rule.State != from {
		return false, nil
	}
	rule.State = to
	return true, nil
}

func (m *memRuleRepo) MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error) {
	rule, ok := m.rules[id]
	if !ok || rule.State != domain.RuleStateActive {
		return false, nil
	}
	rule.State = domain.RuleStateTriggered
	rule.TriggerCount++
	stamped := at
	rule.LastTriggeredAt = &stamped
	return true, nil
}

func (m *memRuleRepo) Rearm(ctx context.Context, id int64) (bool, error) {
	rule, ok := m.rules[id]
	if !ok || rule.State != domain.RuleStateTriggered {
		return false, nil
	}
	rule.State = domain.RuleStateActive
	rule.LastTriggeredAt = nil
	return true, nil
}

func (m *memRuleRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.rules[id]; !ok {
		return false, nil
	}
	delete(m.rules, id)
	return true, nil
}

func (m *memRuleRepo) DeleteTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for id, r := range m.rules {
		if r.State == domain.RuleStateTriggered && r.LastTriggeredAt != nil && r.LastTriggeredAt.Before(cutoff) {
			delete(m.rules, id)
			removed++
		}
	}
	return removed, nil
}

type memNotificationRepo struct {
	notifications []*domain.Notification
	nextID        int64
}

func (m *memNotificationRepo) Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	m.nextID++
	out := *n
	out.ID = m.nextID
	out.CreatedAt = time.Now().UTC()
	m.notifications = append(m.notifications, &out)
	copied := out
	return &copied, nil
}

func (m *memNotificationRepo) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range m.notifications {
		if n.OwnerID != filter.OwnerID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memNotificationRepo) MarkRead(ctx context.Context, id int64, ownerID string) (bool, error) {
	for _, n := range m.notifications {
		if n.ID == id && n.OwnerID == ownerID {
			n.Read = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotificationRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memPreferenceRepo struct {
	stored map[string]*domain.NotificationPreference
}

func newMemPreferenceRepo() *memPreferenceRepo {
	return &memPreferenceRepo{stored: make(map[string]*domain.NotificationPreference)}
}

func (m *memPreferenceRepo) Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	pref, ok := m.stored[ownerID]
	if !ok {
		return nil, nil
	}
	copied := *pref
	return &copied, nil
}

func (m *memPreferenceRepo) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	copied := *pref
	m.stored[pref.OwnerID] = &copied
	return nil
}

type memQuoteProvider struct {
	samples map[string]*domain.MarketSample
}

func (m *memQuoteProvider) GetQuote(ctx context.Context, symbol string) (*domain.MarketSample, error) {
	sample, ok := m.samples[symbol]
	if !ok {
		return nil, &domain.ProviderError{Symbol: symbol, Err: context.Canceled}
	}
	copied := *sample
	copied.Symbol = symbol
	return &copied, nil
}

type testEnv struct {
	handler  *Handler
	ruleRepo *memRuleRepo
	notifs   *memNotificationRepo
	quotes   *memQuoteProvider
	router   *gin.Engine
}

func newTestEnv() *testEnv {
	tracer := trace.NewNoopTracerProvider().Tracer("test")

	ruleRepo := newMemRuleRepo()
	notifRepo := &memNotificationRepo{}
	prefRepo := newMemPreferenceRepo()
	quotes := &memQuoteProvider{samples: make(map[string]*domain.MarketSample)}

	ruleService := service.NewRuleService(tracer, ruleRepo)
	quoteService := service.NewQuoteService(tracer, quotes, nil, time.Minute)
	notificationService := service.NewNotificationService(tracer, notifRepo, prefRepo, nil)
	sc := scanner.New(tracer, ruleService, quoteService, notificationService, time.Second)

	h := New(tracer, ruleService, quoteService, notificationService, sc)
	router := gin.New()
	h.RegisterRoutes(router)

	return &testEnv{
		handler:  h,
		ruleRepo: ruleRepo,
		notifs:   notifRepo,
		quotes:   quotes,
		router:   router,
	}
}
