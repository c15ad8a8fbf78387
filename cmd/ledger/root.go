package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/swadesi/ledger/internal/repository"
	"github.com/swadesi/ledger/internal/repository/memory"
	"github.com/swadesi/ledger/internal/repository/postgres"
	"github.com/swadesi/ledger/pkg/config"
	"github.com/swadesi/ledger/pkg/logger"
)

var buildVersion = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "ledger",
		Short:   "Fund-transfer ledger service",
		Version: buildVersion,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newLoginCommand(),
		newTransferCommand(),
		newHistoryCommand(),
	)
	return root
}

func loadConfig(service string) (config.LedgerConfig, *slog.Logger, error) {
	cfg, err := config.LoadLedgerConfig()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(service, logger.ParseLevel(cfg.LogLevel)), nil
}

// store bundles the repositories selected by configuration.
type store struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	ping         func(context.Context) error
	pool         *pgxpool.Pool
	inMemory     bool
}

func (s store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// openStore connects to PostgreSQL, or falls back to process memory when no
// DATABASE_URL is configured.
func openStore(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		repo := memory.New()
		return store{accounts: repo, transactions: repo, ping: repo.Ping, inMemory: true}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return store{}, fmt.Errorf("connect to database: %w", err)
	}
	repo := postgres.New(pool)
	return store{accounts: repo, transactions: repo, ping: repo.Ping, pool: pool}, nil
}
