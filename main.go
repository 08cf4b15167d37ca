package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/vantagebank/settlement/api"
	"github.com/vantagebank/settlement/config"
	"github.com/vantagebank/settlement/ledger"
	"github.com/vantagebank/settlement/middleware"
	"github.com/vantagebank/settlement/ratelimit"
	"github.com/vantagebank/settlement/relay"
	"github.com/vantagebank/settlement/settlement"
	"github.com/vantagebank/settlement/signature"
	"github.com/vantagebank/settlement/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	checks := map[string]func() error{}

	// Persistence: Postgres in production, in-memory when no DATABASE_URL
	// is set (local runs and tests).
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("database driver error", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		pg := store.NewPostgres(db)
		if err := pg.InitSchema(context.Background()); err != nil {
			logger.Error("schema init failed", "error", err)
			os.Exit(1)
		}
		st = pg
		checks["postgres"] = db.Ping
		defer db.Close()
	} else {
		logger.Warn("no DATABASE_URL set, using in-memory store")
		st = store.NewMemory()
	}

	// Redis backs the rate limiter, the callback idempotency cache and the
	// revocation store; without it the process-local limiter stands in.
	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.RateLimit, cfg.RateLimitWindow)
	var idempotency, rejectRevoked func(http.Handler) http.Handler
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimit, cfg.RateLimitWindow)
		idempotency = middleware.Idempotency(rdb, logger)
		rejectRevoked = middleware.RejectRevoked(middleware.NewRedisRevocationStore(rdb), logger)
		checks["redis"] = func() error { return rdb.Ping(context.Background()).Err() }
	} else {
		logger.Warn("no REDIS_ADDR set, rate limiting is process-local and callback caching is off")
	}

	privateKey, err := signature.LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		logger.Error("loading signing key failed", "error", err)
		os.Exit(1)
	}
	publicKey, err := signature.LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		logger.Error("loading public key failed", "error", err)
		os.Exit(1)
	}

	signer := signature.NewSigner(cfg.BankCode, privateKey)
	var directory signature.KeyDirectory = signature.StaticDirectory{}
	if cfg.KeyDirectoryURL != "" {
		directory = relay.NewDirectory(cfg.KeyDirectoryURL, cfg.RelayTimeout)
	} else {
		logger.Warn("no KEY_DIRECTORY_URL set, incoming cross-bank transfers cannot be verified")
	}
	verifier := signature.NewVerifier(cfg.BankCode, publicKey, directory, logger)

	jwks, err := signature.MarshalJWKS(publicKey, cfg.BankCode)
	if err != nil {
		logger.Error("rendering jwks failed", "error", err)
		os.Exit(1)
	}

	coord := settlement.NewCoordinator(
		settlement.Config{
			BankCode:  cfg.BankCode,
			MinAmount: cfg.TransferMin,
			MaxAmount: cfg.TransferMax,
		},
		st,
		ledger.New(st, logger),
		signer,
		verifier,
		relay.NewClient(cfg.RelayURL, cfg.RelayTimeout, logger),
		limiter,
		logger,
	)

	router := api.NewRouter(api.RouterDeps{
		Coordinator:   coord,
		Store:         st,
		JWKS:          jwks,
		Checks:        checks,
		Idempotency:   idempotency,
		RejectRevoked: rejectRevoked,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", "env", cfg.Env, "port", cfg.Port, "bank", cfg.BankCode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server exited")
}
