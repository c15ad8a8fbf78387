package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swadesi/ledger/internal/app/migrate"
	"github.com/swadesi/ledger/internal/service/seed"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo customers and employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("ledger-seed")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			st, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.inMemory {
				return errors.New("DATABASE_URL is required; the in-memory store is seeded by serve")
			}
			runner, err := migrate.New(st.pool, cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			if err := runner.Ensure(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}

			res, err := seed.New(st.accounts, log, cfg.BcryptCost).Seed(ctx, seed.Demo)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range res.Created {
				fmt.Fprintf(out, "created %-9s %-22s %s\n", a.Role, a.Email, a.ID)
			}
			for _, email := range res.Skipped {
				fmt.Fprintf(out, "exists  %s\n", email)
			}
			return nil
		},
	}
}
