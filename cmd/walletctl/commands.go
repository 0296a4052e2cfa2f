package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fastprodman/billwallet/internal/app"
	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/pkg/money"
	"github.com/spf13/cobra"
)

type builder func(ctx context.Context) (*app.App, func(context.Context) error, error)

func newRootCmd(build builder) *cobra.Command {
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operate the wallet ledger: pending entries, manual resolution, sweeps",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("json", false, "Output as JSON")

	root.AddCommand(pendingCmd(build))
	root.AddCommand(resolveCmd(build))
	root.AddCommand(sweepCmd(build))
	root.AddCommand(balanceCmd(build))

	return root
}

// withApp builds the app for one command and releases it afterwards.
func withApp(cmd *cobra.Command, build builder, fn func(ctx context.Context, a *app.App) error) (retErr error) {
	ctx := cmd.Context()

	a, closeFn, err := build(ctx)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cerr := closeFn(shutdownCtx)
		if cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func pendingCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending transactions older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				list, err := a.Service.PendingOlderThan(ctx, olderThan, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()

				if asJSON {
					return printJSON(out, list)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "REFERENCE\tOWNER\tAMOUNT\tPROVIDER\tCREATED")

				for _, t := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						t.Reference, t.OwnerID, money.Format(t.Amount), t.Provider, t.CreatedAt.UTC().Format(time.RFC3339))
				}

				return tw.Flush()
			})
		},
	}

	cmd.Flags().Duration("older-than", 15*time.Minute, "Minimum age of listed entries")
	cmd.Flags().IntP("limit", "n", 50, "Maximum results")

	return cmd
}

func resolveCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Settle a pending transaction by hand",
		Long: "Settle a pending transaction with an outcome confirmed out of band. " +
			"A failed outcome refunds the wallet and records the entry as refunded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, _ := cmd.Flags().GetString("outcome")
			reason, _ := cmd.Flags().GetString("reason")
			asJSON, _ := cmd.Flags().GetBool("json")

			class := gateway.Class(outcome)
			if class != gateway.Success && class != gateway.Failed {
				return fmt.Errorf("--outcome must be %s or %s", gateway.Success, gateway.Failed)
			}

			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				fs, err := a.Service.ForceResolve(ctx, args[0], class, reason)
				if err != nil {
					return err
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), fs)
				}

				if !fs.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already %s, nothing changed\n", fs.Reference, fs.Status)
					return nil
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s resolved as %s (refunded: %t)\n", fs.Reference, fs.Status, fs.Refunded)

				return nil
			})
		},
	}

	cmd.Flags().String("outcome", "", "Confirmed outcome: success or failed")
	cmd.Flags().String("reason", "manual resolution", "Reason stored on the transaction")
	_ = cmd.MarkFlagRequired("outcome")

	return cmd
}

func sweepCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				report, err := a.Service.Sweep(ctx)
				if err != nil {
					return err
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), report)
				}

				fmt.Fprintf(cmd.OutOrStdout(),
					"scanned=%d completed=%d failed=%d refunded=%d still_pending=%d errors=%d\n",
					report.Scanned, report.Completed, report.Failed, report.Refunded, report.StillPending, report.Errors)

				return nil
			})
		},
	}
}

func balanceCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <owner-id>",
		Short: "Show a wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				b, err := a.Service.Balance(ctx, args[0])
				if err != nil {
					return err
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), b)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s balance=%s limit=%s pin=%t\n",
					b.OwnerID, money.Format(b.Balance), money.Format(b.Limit), b.HasPIN)

				return nil
			})
		},
	}
}
