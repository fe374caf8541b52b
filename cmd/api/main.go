package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/synthpool/synthpool-backend/internal/api"
	"github.com/synthpool/synthpool-backend/internal/config"
	"github.com/synthpool/synthpool-backend/internal/identity"
	"github.com/synthpool/synthpool-backend/internal/journal"
	"github.com/synthpool/synthpool-backend/internal/ledger"
	"github.com/synthpool/synthpool-backend/internal/log"
	"github.com/synthpool/synthpool-backend/internal/metrics"
	"github.com/synthpool/synthpool-backend/internal/oracle"
	"github.com/synthpool/synthpool-backend/internal/store"
	"github.com/synthpool/synthpool-backend/internal/token"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting synthetic pool API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("synthpool-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Setup Redis cache (falls back to in-memory when unreachable)
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache ready", "in_memory", cache.IsInMemoryMode())

	// Operations journal is optional; the pool runs without it.
	jrnl := setupJournal(ctx, cfg, logger)

	// Seed the price gateway from config.
	gateway := oracle.NewStatic()
	seed, err := cfg.Oracle.ParseSeedPrices()
	if err != nil {
		logger.Fatalw("Failed to parse seed prices", "error", err)
	}
	for symbol, price := range seed {
		if err := gateway.SetPrice(symbol, cfg.Pool.UnitOfAccount, price); err != nil {
			logger.Fatalw("Failed to seed price", "symbol", symbol, "error", err)
		}
	}
	logger.Infow("Price gateway seeded", "pairs", len(seed), "unit_of_account", cfg.Pool.UnitOfAccount)

	// Custody ledger and the single mint authority.
	custody, authority := token.NewMemory()
	collateralToken, err := custody.NewToken(ctx, authority, "Collateral", cfg.Pool.CollateralSymbol)
	if err != nil {
		logger.Fatalw("Failed to create collateral token", "error", err)
	}

	threshold, err := cfg.Pool.ThresholdDecimal()
	if err != nil {
		logger.Fatalw("Invalid threshold", "error", err)
	}

	pool, err := ledger.NewPool(ledger.PoolConfig{
		Oracle:           gateway,
		Custody:          custody,
		Authority:        authority,
		Identity:         identity.Passthrough{},
		CollateralToken:  collateralToken,
		CollateralSymbol: cfg.Pool.CollateralSymbol,
		UnitOfAccount:    cfg.Pool.UnitOfAccount,
		Threshold:        threshold,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalw("Failed to create pool", "error", err)
	}
	logger.Infow("Pool engine ready",
		"collateral", cfg.Pool.CollateralSymbol,
		"threshold", threshold,
	)

	// Dev deployments get a collateral faucet.
	var faucet api.FaucetFunc
	if cfg.IsDev() {
		faucet = func(ctx context.Context, account string, amount decimal.Decimal) error {
			bucket, err := custody.Mint(ctx, authority, collateralToken, amount)
			if err != nil {
				return err
			}
			return custody.Deposit(ctx, account, bucket)
		}
		logger.Infow("Dev faucet enabled")
	}

	// Setup API handler and middleware
	handler := api.NewHandler(pool, custody, identity.Passthrough{}, cache, jrnl, cfg, logger, metricsObj, faucet)
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}

// setupJournal connects the Postgres operations journal when a DSN is
// configured. A missing or unreachable database downgrades to journal-less
// operation rather than failing startup.
func setupJournal(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *journal.Journal {
	if cfg.Database.PostgresDSN == "" {
		logger.Infow("No Postgres DSN configured; operations journal disabled")
		return nil
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		logger.Warnw("Failed to open Postgres; operations journal disabled", "error", err)
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Warnw("Postgres unreachable; operations journal disabled", "error", err)
		db.Close()
		return nil
	}

	logger.Infow("Operations journal connected")
	return journal.NewJournal(db, logger)
}
