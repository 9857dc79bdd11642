package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotewatch/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBaseURL = "https://brapi.dev"

// BrapiProvider fetches B3 quotes from the brapi.dev REST API. One call per
// distinct symbol per sweep; failures come back as ProviderError so the
// scanner can skip just that symbol.
type BrapiProvider struct {
	tracer  trace.Tracer
	client  *http.Client
	baseURL string
	token   string
}

func NewBrapiProvider(tracer trace.Tracer, baseURL, token string) *BrapiProvider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &BrapiProvider{
		tracer:  tracer,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type brapiQuoteResponse struct {
	Results []struct {
		Symbol                     string  `json:"symbol"`
		RegularMarketPrice         float64 `json:"regularMarketPrice"`
		RegularMarketVolume        float64 `json:"regularMarketVolume"`
		RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
		PriceEarnings              float64 `json:"priceEarnings"`
		EarningsPerShare           float64 `json:"earningsPerShare"`
	} `json:"results"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func (p *BrapiProvider) GetQuote(ctx context.Context, symbol string) (*domain.MarketSample, error) {
	ctx, span := p.tracer.Start(ctx, "brapi.get-quote")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	span.SetAttributes(attribute.String("symbol", symbol))
	if symbol == "" {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("empty symbol")}
	}

	endpoint := fmt.Sprintf("%s/api/quote/%s", p.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: err}
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload brapiQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.Error {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("api error: %s", payload.Message)}
	}
	if len(payload.Results) == 0 {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("no quote in response")}
	}

	q := payload.Results[0]
	sample := &domain.MarketSample{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		Volume:        q.RegularMarketVolume,
		ChangePercent: q.RegularMarketChangePercent,
		Indicators:    map[string]float64{},
		ObservedAt:    time.Now().UTC(),
	}
	if q.PriceEarnings != 0 {
		sample.Indicators["price_earnings"] = q.PriceEarnings
	}
	if q.EarningsPerShare != 0 {
		sample.Indicators["earnings_per_share"] = q.EarningsPerShare
	}
	return sample, nil
}
