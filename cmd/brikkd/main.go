// Command brikkd runs the Brikk coordination server: envelope
// validation, HMAC request signing, sliding-window rate limiting, and
// the coordination API, all in one process against a Redis backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brikk-labs/brikk/pkg/api"
	"github.com/brikk-labs/brikk/pkg/auth"
	"github.com/brikk-labs/brikk/pkg/config"
	"github.com/brikk-labs/brikk/pkg/dedup"
	"github.com/brikk-labs/brikk/pkg/envelope"
	"github.com/brikk-labs/brikk/pkg/guard"
	"github.com/brikk-labs/brikk/pkg/hmacauth"
	"github.com/brikk-labs/brikk/pkg/metering"
	"github.com/brikk-labs/brikk/pkg/observability"
	"github.com/brikk-labs/brikk/pkg/ratelimit"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("brikkd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The schema endpoint serves this document verbatim; refuse to start
	// if it ever stops being a valid schema.
	if _, err := envelope.CompileSchema(); err != nil {
		return fmt.Errorf("compile envelope schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// The limiter and deduper fail open, so a cold Redis is a
		// degraded start, not a fatal one.
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}

	creds := hmacauth.StaticCredentials{}
	for keyID, c := range cfg.HMACCredentials {
		creds[keyID] = hmacauth.Credential{KeyID: c.KeyID, OrgID: c.OrgID, Secret: c.Secret}
	}
	if cfg.HMACEnabled && len(creds) == 0 {
		return errors.New("hmac auth enabled but BRIKK_HMAC_SECRETS provided no credentials")
	}
	verifier := hmacauth.NewVerifier(creds)
	verifier.MaxSkew = cfg.HMACMaxSkew

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb), cfg.RateLimitEnabled, logger)
	policies, err := config.LoadPolicies(cfg.PolicyDir)
	if err != nil {
		return fmt.Errorf("load rate policies: %w", err)
	}
	if len(policies) > 0 {
		logger.Info("rate policy overrides loaded", "count", len(policies), "dir", cfg.PolicyDir)
	}

	scope := ratelimit.ScopeOrg
	if strings.EqualFold(cfg.RateScope, string(ratelimit.ScopeKey)) {
		scope = ratelimit.ScopeKey
	}

	pipeline := api.NewPipeline(
		&api.GuardStage{Guard: guard.New(cfg.MaxBodyBytes)},
		&api.BodyStage{MaxBytes: cfg.MaxBodyBytes},
		&api.ParseStage{},
		&api.AuthStage{Verifier: verifier, Enabled: cfg.HMACEnabled, Logger: logger},
		&api.RateStage{
			Limiter:       limiter,
			Scope:         scope,
			DefaultPolicy: ratelimit.Policy{PerMinute: cfg.RatePerMinute, Burst: cfg.RateBurst},
			Policies:      policies,
		},
		&api.ValidateStage{Validator: envelope.NewValidator(cfg.AllowUUID4)},
	)
	logger.Info("coordination pipeline composed", "stages", pipeline.StageNames())

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Environment = cfg.Environment
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown", "error", err)
		}
	}()

	deps := api.RouterDeps{
		Coordination: &api.CoordinationHandler{
			Pipeline: pipeline,
			Deduper:  dedup.NewRedisDeduper(rdb),
			Meter:    metering.NewRedisStreamRecorder(rdb),
			Logger:   logger,
		},
		Health:  &api.HealthHandler{Redis: rdb, Version: version},
		Tracing: obs.Middleware,
	}
	if cfg.EdgeRPS > 0 {
		deps.Edge = api.NewEdgeLimiter(cfg.EdgeRPS, cfg.EdgeBurst)
	}
	if validator := auth.NewJWTValidator(cfg.AdminJWTSecret); validator != nil {
		deps.Admin = &api.AdminHandler{Limiter: limiter}
		deps.JWTValidator = validator
		logger.Info("admin API enabled")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("brikkd listening", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
