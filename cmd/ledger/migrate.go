package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/swadesi/ledger/internal/app/migrate"
)

func newMigrateCommand() *cobra.Command {
	var timeout time.Duration
	var target int64
	cmd := &cobra.Command{
		Use:       "migrate [up|status|down]",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			cfg, log, err := loadConfig("ledger-migrate")
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.DatabaseURL) == "" {
				return errors.New("DATABASE_URL is required for migrations")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			runner, err := migrate.New(pool, cfg.DatabaseURL, log)
			if err != nil {
				return fmt.Errorf("configure migration runner: %w", err)
			}

			switch command {
			case "up":
				err = runner.Ensure(ctx)
			case "status":
				err = runner.Status(ctx)
			case "down":
				err = runner.Down(ctx, target)
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			log.Info("migration command completed", "command", command)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "command timeout")
	cmd.Flags().Int64Var(&target, "target", 0, "target version for down (default: previous version)")
	return cmd
}
