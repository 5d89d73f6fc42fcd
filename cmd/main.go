package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/internal/analytics"
	"github.com/unite-hub/synthex-gateway/internal/api"
	"github.com/unite-hub/synthex-gateway/internal/budget"
	"github.com/unite-hub/synthex-gateway/internal/config"
	"github.com/unite-hub/synthex-gateway/internal/database"
	"github.com/unite-hub/synthex-gateway/internal/dispatch"
	"github.com/unite-hub/synthex-gateway/internal/pricing"
	"github.com/unite-hub/synthex-gateway/internal/provider"
	"github.com/unite-hub/synthex-gateway/internal/router"
	"github.com/unite-hub/synthex-gateway/internal/usage"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.Infof("Starting Synthex AI Gateway on port %s", cfg.Port)

	// Model catalog and routing table.
	cat, catFile, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	log.Infof("Catalog loaded: %d models, %d routes", len(cat.Profiles()), len(cat.Routes()))

	// Database. The gateway keeps dispatching without it; usage records are
	// then dropped and reporting endpoints return 503.
	db, err := database.New(cfg.DSN())
	if err != nil {
		log.Warnf("Database unavailable (%v). Usage persistence and analytics disabled.", err)
		db = nil
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()
		log.Infof("Database connected (%s), migrations applied.", cfg.RedactedDSN())
	}

	// Redis backs the budget ledger and rate limiting.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warnf("Redis unavailable (%v). Using in-memory ledgers; spend totals reset on restart.", err)
		rdb = nil
	} else {
		defer rdb.Close()
		log.Info("Redis connected.")
	}
	pingCancel()

	var store budget.LedgerStore
	if rdb != nil {
		store = budget.NewRedisStore(rdb)
	} else {
		store = budget.NewMemoryStore()
	}

	defaultCeiling, err := decimal.NewFromString(cfg.DefaultCeilingUSD)
	if err != nil {
		log.Fatalf("Invalid SYNTHEX_DAILY_CEILING_USD: %v", err)
	}
	guard := budget.NewGuard(store, budget.Config{
		DefaultCeilingUSD: catFile.DefaultCeiling(defaultCeiling),
		AlertFraction:     cfg.AlertFraction,
		TenantCeilingsUSD: catFile.TenantCeilings(),
		FailOpen:          cfg.BudgetFailOpen,
	}, func(tenantID string, ledger models.Ledger) {
		log.Warnf("Budget alert: tenant=%s spent %s of %s today",
			tenantID, ledger.SpentUSD, ledger.CeilingUSD)
	})

	// Usage logging. Postgres sink when available, otherwise records are
	// counted and discarded.
	var sink usage.Sink = usage.NopSink{}
	if db != nil {
		sink = &database.RecordSink{DB: db, CeilingFor: guard.CeilingFor}
	}
	usageLog := usage.NewLogger(sink, cfg.UsageBuffer)

	estimator := pricing.NewEstimator(cat, cfg.DefaultMaxOutputTokens)
	registry := provider.NewRegistry(provider.Keys{
		OpenRouter: cfg.OpenRouterKey,
		Anthropic:  cfg.AnthropicKey,
		Gemini:     cfg.GeminiKey,
	})
	dispatcher := dispatch.NewDispatcher(router.New(cat), estimator, guard,
		registry, usageLog, cfg.CallTimeout)

	var insights *analytics.InsightsEngine
	if db != nil {
		insights = analytics.NewInsightsEngine(db.Pool, cat)
	}

	handlers := api.NewHandlers(dispatcher, guard, cat, db, insights)
	engine := api.NewRouter(handlers, api.RouterOptions{
		AdminAPIKey:        cfg.AdminAPIKey,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RedisClient:        rdb,
		Debug:              cfg.LogLevel == "debug",
	})

	if cfg.AdminAPIKey == "" {
		log.Warn("SYNTHEX_ADMIN_API_KEY not set. Management API is disabled (fail-secure).")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Synthex AI Gateway is ready on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Flush buffered usage records before the process exits.
	if err := usageLog.Close(shutdownCtx); err != nil {
		log.Warnf("Usage logger did not drain cleanly: %v", err)
	}
	if dropped := usageLog.Dropped(); dropped > 0 {
		log.Warnf("Usage logger dropped %d records this run.", dropped)
	}
	log.Info("Server exited.")
}
