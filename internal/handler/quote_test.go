package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"quotewatch/internal/domain"
	"quotewatch/internal/scanner"
)

func TestGetQuote(t *testing.T) {
	env := newTestEnv()
	env.quotes.samples["PETR4"] = &domain.MarketSample{Price: 36.1, ObservedAt: time.Now().UTC()}

	w := doJSON(env, http.MethodGet, "/api/quotes/petr4", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sample domain.MarketSample
	if err := json.Unmarshal(w.Body.Bytes(), &sample); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if sample.Symbol != "PETR4" || sample.Price != 36.1 {
		t.Fatalf("unexpected sample: %+v", sample)
	}
}

func TestGetQuoteProviderFailure(t *testing.T) {
	env := newTestEnv()

	w := doJSON(env, http.MethodGet, "/api/quotes/MISS", "", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestTriggerSweepEndToEnd(t *testing.T) {
	env := newTestEnv()
	env.quotes.samples["PETR4"] = &domain.MarketSample{Price: 36.1, ObservedAt: time.Now().UTC()}

	create := doJSON(env, http.MethodPost, "/api/rules", "user-1", map[string]interface{}{
		"symbol":         "PETR4",
		"kind":           "price",
		"condition_type": "above",
		"target_value":   35.0,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d", create.Code)
	}

	w := doJSON(env, http.MethodPost, "/api/sweep", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats scanner.SweepStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if stats.Triggered != 1 {
		t.Fatalf("expected one trigger, got %+v", stats)
	}

	// Sweep result lands in the notification feed.
	list := doJSON(env, http.MethodGet, "/api/notifications", "user-1", nil)
	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	json.Unmarshal(list.Body.Bytes(), &resp)
	if len(resp.Notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(resp.Notifications))
	}

	// The rule is triggered now; a second sweep evaluates nothing.
	again := doJSON(env, http.MethodPost, "/api/sweep", "", nil)
	json.Unmarshal(again.Body.Bytes(), &stats)
	if stats.RulesEvaluated != 0 || stats.Triggered != 0 {
		t.Fatalf("triggered rules must leave the sweep set, got %+v", stats)
	}
}
