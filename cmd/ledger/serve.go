package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/swadesi/ledger/internal/app/migrate"
	httpx "github.com/swadesi/ledger/internal/http"
	"github.com/swadesi/ledger/internal/service/auth"
	"github.com/swadesi/ledger/internal/service/history"
	"github.com/swadesi/ledger/internal/service/notify"
	"github.com/swadesi/ledger/internal/service/seed"
	"github.com/swadesi/ledger/internal/service/transfer"
	"github.com/swadesi/ledger/internal/ws"
	"github.com/swadesi/ledger/pkg/config"
	"github.com/swadesi/ledger/pkg/crypto"
)

func newServeCommand() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("ledger-api")
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, log, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	return cmd
}

func runServe(parent context.Context, cfg config.LedgerConfig, log *slog.Logger, skipMigrations bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.pool != nil {
		runner, err := migrate.New(st.pool, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ping(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
		if !skipMigrations {
			if err := runner.Ensure(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
	} else {
		if _, err := seed.New(st.accounts, log, cfg.BcryptCost).Seed(ctx, seed.Demo); err != nil {
			return fmt.Errorf("seed in-memory store: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub()
	sinks := notify.Multi{notify.NewLogger(log), notify.NewHub(hub)}
	if addr := strings.TrimSpace(cfg.NotifyRedisAddr); addr != "" {
		publisher, err := notify.NewRedisPublisher(addr, cfg.NotifyRedisPass, cfg.NotifyRedisDB, cfg.NotifyChannel)
		if err != nil {
			log.Warn("redis notification publisher unavailable", "error", err)
		} else {
			defer publisher.Close()
			sinks = append(sinks, notify.NewBreaker(publisher, notify.BreakerSettings{Name: "redis-notify"}, log))
		}
	}

	verifier := crypto.BcryptVerifier{}
	transferSvc := transfer.New(st.accounts, st.transactions, verifier, sinks, log, transfer.NewMetrics(registry), transfer.Options{
		MaxAttempts:   cfg.TransferAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	authSvc := auth.New(st.accounts, verifier, log, auth.Config{JWTSecret: cfg.JWTSecret, AccessTokenTTL: cfg.AccessTokenTTL})
	historySvc := history.New(st.accounts, st.transactions, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:    log,
		Transfers: transferSvc,
		Auth:      authSvc,
		History:   historySvc,
		Hub:       hub,
		Limiter:   limiter,
		Registry:  registry,
		DBHealth:  st.ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "in_memory", st.inMemory)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		transferSvc.Wait()
		log.Info("api server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
