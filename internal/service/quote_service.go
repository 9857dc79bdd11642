package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"quotewatch/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*domain.MarketSample, error)
}

// QuoteService fronts the market data provider with a short-lived redis
// cache so on-demand sweeps and the HTTP quote endpoint share fetches.
// The cache is best-effort: redis failures are logged and the provider is
// consulted directly.
type QuoteService struct {
	tracer   trace.Tracer
	provider QuoteProvider
	redis    *redis.Client
	ttl      time.Duration
}

func NewQuoteService(tracer trace.Tracer, provider QuoteProvider, redisClient *redis.Client, ttl time.Duration) *QuoteService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QuoteService{
		tracer:   tracer,
		provider: provider,
		redis:    redisClient,
		ttl:      ttl,
	}
}

func (s *QuoteService) GetQuote(ctx context.Context, symbol string) (*domain.MarketSample, error) {
	ctx, span := s.tracer.Start(ctx, "quote-service.get-quote")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := "quote:" + symbol

	if s.redis != nil {
		raw, err := s.redis.Get(ctx, key).Result()
		if err == nil {
			var sample domain.MarketSample
			if err := json.Unmarshal([]byte(raw), &sample); err == nil {
				return &sample, nil
			}
			log.Printf("corrupt cached quote for %s, refetching", symbol)
		} else if err != redis.Nil {
			log.Printf("quote cache read error for %s: %v", symbol, err)
		}
	}

	sample, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if raw, err := json.Marshal(sample); err == nil {
			if err := s.redis.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				log.Printf("quote cache write error for %s: %v", symbol, err)
			}
		}
	}
	return sample, nil
}
