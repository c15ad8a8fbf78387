package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/swadesi/ledger/pkg/api/client"
	"github.com/swadesi/ledger/pkg/config"
)

const requestTimeout = 30 * time.Second

func apiFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "api", config.GetString("LEDGER_API", "http://localhost:4000"), "API base URL")
}

// readSecret returns flagValue or prompts on the terminal without echo.
func readSecret(prompt, flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func newLoginCommand() *cobra.Command {
	var apiBase, email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret("Password: ", password)
			if err != nil {
				return err
			}
			cli, err := apiclient.New(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			resp, err := cli.Login(ctx, email, secret)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s (%s, account %s)\n", resp.Name, resp.Role, resp.AccountID)
			fmt.Fprintf(out, "export LEDGER_TOKEN=%s\n", resp.Token)
			return nil
		},
	}
	apiFlag(cmd, &apiBase)
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTransferCommand() *cobra.Command {
	var apiBase, sender, receiver, amount, password string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send funds to another account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}
			secret, err := readSecret("Sender password: ", password)
			if err != nil {
				return err
			}
			cli, err := apiclient.New(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			tx, err := cli.Transfer(ctx, apiclient.TransferInput{
				SenderID:   sender,
				ReceiverID: receiver,
				Amount:     value,
				Secret:     secret,
			})
			if err != nil {
				var apiErr apiclient.APIError
				if errors.As(err, &apiErr) && apiErr.Status == 409 {
					return fmt.Errorf("%w (safe to resubmit)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction successful: %s sent %s to %s (id %s)\n", tx.SenderID, tx.Amount.StringFixed(2), tx.ReceiverID, tx.ID)
			return nil
		},
	}
	apiFlag(cmd, &apiBase)
	cmd.Flags().StringVar(&sender, "from", "", "sender account id")
	cmd.Flags().StringVar(&receiver, "to", "", "receiver account id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, up to two decimal places")
	cmd.Flags().StringVar(&password, "password", "", "sender password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var apiBase, token, account, direction string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("--token or LEDGER_TOKEN is required; run ledger login first")
			}
			cli, err := apiclient.New(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			var list []apiclient.Transaction
			switch direction {
			case "sent":
				list, err = cli.Sent(ctx, token, account)
			case "received":
				list, err = cli.Received(ctx, token, account)
			case "all":
				list, err = cli.All(ctx, token)
			default:
				return fmt.Errorf("unknown direction %q (sent|received|all)", direction)
			}
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), list)
		},
	}
	apiFlag(cmd, &apiBase)
	cmd.Flags().StringVar(&token, "token", config.GetString("LEDGER_TOKEN", ""), "access token")
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().StringVar(&direction, "direction", "sent", "sent, received or all")
	return cmd
}

func printTransactions(out io.Writer, list []apiclient.Transaction) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tID\tFROM\tTO\tAMOUNT")
	for _, tx := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tx.Timestamp.Local().Format(time.RFC3339), tx.ID, tx.SenderID, tx.ReceiverID, tx.Amount.StringFixed(2))
	}
	return tw.Flush()
}
