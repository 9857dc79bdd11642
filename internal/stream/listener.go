package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"quotewatch/internal/scanner"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 32 * time.Second
	connectTimeout = 10 * time.Second
)

// SymbolSweeper re-evaluates the rules watching one symbol.
type SymbolSweeper interface {
	SweepSymbol(ctx context.Context, symbol string) (scanner.SweepStats, error)
}

// tick is the upstream quote stream message. Only the symbol matters; the
// scanner fetches the full sample itself so ticks and polled quotes go
// through the same path.
type tick struct {
	Symbol string `json:"symbol"`
}

// Listener subscribes to a market data websocket feed and sweeps a
// symbol's rules as soon as a tick for it arrives. The periodic sweep
// stays the source of truth; the stream only shortens reaction time.
type Listener struct {
	tracer  trace.Tracer
	url     string
	sweeper SymbolSweeper
	dial    func(ctx context.Context, url string) (*websocket.Conn, error)

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener(tracer trace.Tracer, url string, sweeper SymbolSweeper) *Listener {
	return &Listener{
		tracer:     tracer,
		url:        url,
		sweeper:    sweeper,
		dial:       dialWebsocket,
		minBackoff: initialBackoff,
		maxBackoff: maxBackoff,
	}
}

func dialWebsocket(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	return conn, err
}

// Start connects and consumes ticks, reconnecting with exponential
// backoff on any failure. Blocks until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) {
	if l.url == "" || l.sweeper == nil {
		log.Println("Quote stream disabled")
		<-ctx.Done()
		return
	}

	log.Printf("Quote stream connecting to %s", l.url)
	backoff := l.minBackoff
	for {
		connected, err := l.consume(ctx)
		if err != nil {
			log.Printf("quote stream error: %v", err)
		}
		if connected {
			// A connection that lived should not inherit the
			// accumulated delay of the failures before it.
			backoff = l.minBackoff
		}
		select {
		case <-ctx.Done():
			log.Println("Quote stream stopped")
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// consume dials the feed and reads ticks until the connection fails or the
// context is cancelled. connected reports whether the dial succeeded.
func (l *Listener) consume(ctx context.Context) (connected bool, _ error) {
	conn, err := l.dial(ctx, l.url)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Unblock ReadMessage when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		l.handleTick(ctx, payload)
	}
}

func (l *Listener) handleTick(ctx context.Context, payload []byte) {
	var t tick
	if err := json.Unmarshal(payload, &t); err != nil {
		log.Printf("quote stream: malformed tick: %v", err)
		return
	}
	if t.Symbol == "" {
		return
	}

	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.Start(ctx, "quote-stream.handle-tick")
		defer span.End()
	}

	if _, err := l.sweeper.SweepSymbol(ctx, t.Symbol); err != nil {
		log.Printf("quote stream: sweep failed for %s: %v", t.Symbol, err)
	}
}
