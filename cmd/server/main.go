package main

import (
	"context"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"quotewatch/internal/bot"
	"quotewatch/internal/cache"
	"quotewatch/internal/config"
	"quotewatch/internal/db"
	"quotewatch/internal/handler"
	"quotewatch/internal/job"
	"quotewatch/internal/provider"
	"quotewatch/internal/repository"
	"quotewatch/internal/scanner"
	"quotewatch/internal/service"
	"quotewatch/internal/stream"
	"quotewatch/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	newRuleRepoFunc      = repository.NewRuleRepository
	newNotifRepoFunc     = repository.NewNotificationRepository
	newPrefRepoFunc      = repository.NewPreferenceRepository
	newBrapiProviderFunc = func(tracer trace.Tracer, baseURL, token string) service.QuoteProvider {
		return provider.NewBrapiProvider(tracer, baseURL, token)
	}
	newRuleServiceFunc   = service.NewRuleService
	newQuoteServiceFunc  = service.NewQuoteService
	newNotifServiceFunc  = service.NewNotificationService
	newScannerFunc       = scanner.New
	newSweepPollerFunc   = job.NewSweepPoller
	startSweepPollerFunc = func(p *job.SweepPoller, ctx context.Context) { go p.Start(ctx) }
	newRetentionFunc     = job.NewRetention
	startRetentionFunc   = func(j *job.Retention, ctx context.Context) { go j.Start(ctx) }
	newStreamFunc        = stream.NewListener
	startStreamFunc      = func(l *stream.Listener, ctx context.Context) { go l.Start(ctx) }
	startTelegramBotFunc = bot.StartTelegramBot
	newHandlerFunc       = handler.New
	newRouterFunc        = gin.Default
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPFunc     = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Quotewatch API
// @version         1.0
// @description     Alert rule evaluation and notification dispatch for B3 market data.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories and migrations
	ruleRepo := newRuleRepoFunc(db.Pool, tracer)
	notifRepo := newNotifRepoFunc(db.Pool, tracer)
	prefRepo := newPrefRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := ruleRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run rule migrations: %v", err)
		}
		if err := notifRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run notification migrations: %v", err)
		}
		if err := prefRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run preference migrations: %v", err)
		}
	}

	// Telegram delivery channel
	_, notifier := startTelegramBotFunc(cfg.TelegramBotToken)

	// Providers and services
	brapi := newBrapiProviderFunc(tracer, cfg.BrapiBaseURL, cfg.BrapiToken)
	quoteService := newQuoteServiceFunc(tracer, brapi, cache.Client, time.Duration(cfg.QuoteCacheTTLSecs)*time.Second)
	ruleService := newRuleServiceFunc(tracer, ruleRepo)

	var channel service.DeliveryChannel
	if notifier != nil {
		channel = notifier
	}
	notifService := newNotifServiceFunc(tracer, notifRepo, prefRepo, channel)

	// Scanner and background jobs (stopped by ctx cancel)
	sc := newScannerFunc(tracer, ruleService, quoteService, notifService, time.Duration(cfg.SymbolFetchTimeoutSecs)*time.Second)

	sweepPoller := newSweepPollerFunc(tracer, sc, time.Duration(cfg.SweepIntervalSecs)*time.Second)
	startSweepPollerFunc(sweepPoller, ctx)

	retention := newRetentionFunc(tracer, notifService, ruleService, cfg.NotificationRetentionDays, cfg.TriggeredRuleRetentionDays)
	startRetentionFunc(retention, ctx)

	if cfg.QuoteStreamEnabled {
		listener := newStreamFunc(tracer, cfg.QuoteStreamURL, sc)
		startStreamFunc(listener, ctx)
	}

	// Handlers and routes
	h := newHandlerFunc(tracer, ruleService, quoteService, notifService, sc)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("quotewatch"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
