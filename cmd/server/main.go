package main

import (
	"context"   // Shutdown deadlines
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"fund_ledger/internal/api"      // HTTP handlers
	"fund_ledger/internal/approval" // Approval authority
	"fund_ledger/internal/audit"    // Audit trail
	"fund_ledger/internal/config"   // Configuration
	"fund_ledger/internal/db"       // Database connection
	"fund_ledger/internal/domain"   // Approval methods
	"fund_ledger/internal/fund"     // Fund registry
	"fund_ledger/internal/ledger"   // Crediting engine
	"fund_ledger/internal/transfer" // Outbox worker and gateway client
	"fund_ledger/internal/withdrawal"

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"golang.org/x/sync/errgroup"   // Server and worker lifecycle
)

// setupLogger applies LOG_LEVEL and LOG_FORMAT
func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)

	gdb, err := db.Open(cfg.DBDriver, db.DSN(cfg))
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Approval methods
	shared, err := approval.NewSharedSecret(cfg.ApprovalSecretHashes)
	if err != nil {
		logrus.Fatalf("invalid APPROVAL_SECRET_HASHES: %v", err)
	}
	codes := approval.NewCodeChannel(redisClient, cfg.ApprovalCodeTTL, approval.LogNotifier{})
	authority := approval.NewAuthority().Register(domain.ApprovalAlternateChannel, codes)
	if len(cfg.ApprovalSecretHashes) > 0 {
		authority.Register(domain.ApprovalSharedSecret, shared)
	} else {
		logrus.Warn("APPROVAL_SECRET_HASHES is empty, shared-secret approvals are disabled")
	}

	// Core services
	recorder := audit.NewGormSink(gdb)
	registry := fund.NewRegistry(gdb)
	credits, err := ledger.NewEngine(gdb, registry, recorder, cfg.TitheCategories)
	if err != nil {
		logrus.Fatalf("invalid TITHE_CATEGORIES: %v", err)
	}
	initiator := transfer.NewHTTPInitiator(cfg.GatewayURL, cfg.GatewayAPIKey, &http.Client{})
	worker := transfer.NewWorker(gdb, initiator, recorder, transfer.WorkerOptions{
		Timeout:     cfg.GatewayTimeout,
		Interval:    cfg.TransferPollInterval,
		MaxAttempts: cfg.TransferMaxAttempts,
	})
	withdrawals, err := withdrawal.NewEngine(gdb, registry, authority, recorder, worker, withdrawal.Options{
		RequiredApprovals: cfg.RequiredApprovals,
	})
	if err != nil {
		logrus.Fatalf("invalid REQUIRED_APPROVALS: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default() // Gin router instance
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.NewRouter(r, api.Services{
		Registry:    registry,
		Ledger:      credits,
		Withdrawals: withdrawals,
		Codes:       codes,
		Audit:       recorder,
		Redis:       redisClient,
	}, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logrus.Fatalf("server stopped: %v", err)
	}
	logrus.Info("Server stopped")
}
