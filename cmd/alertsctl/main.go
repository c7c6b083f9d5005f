package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skylineops/invoice-alerts/internal/bootstrap"
	"github.com/skylineops/invoice-alerts/internal/config"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "alertsctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "alertsctl",
		Short:        "Operations CLI for the invoice alerting service",
		Long:         "alertsctl runs the alerting jobs directly against the configured environment: creating alerts from recent invoices, flushing pending Slack deliveries, and probing the webhook.",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newFlushCmd(),
		newTestSlackCmd(),
		newListCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	var limit, lookback int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan recent invoices and create alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Creator.Run(ctx, limit, lookback)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum alerts to create")
	cmd.Flags().IntVar(&lookback, "lookback", 240, "Invoice lookback window in minutes")
	return cmd
}

func newFlushCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver pending alerts to Slack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Flusher.Run(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum sends per run")
	return cmd
}

func newTestSlackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-slack",
		Short: "Post a test message to the configured webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				result := app.Notifier.PostTest(ctx)
				if err := printJSON(result); err != nil {
					return err
				}
				if !result.OK {
					return fmt.Errorf("slack test failed")
				}
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var limit int
	var q, status, slackStatus string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List currently actionable alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				rows := app.Alerts.List(ctx, ports.ListAlertsQuery{
					Limit:       limit,
					Q:           q,
					Status:      status,
					SlackStatus: slackStatus,
				})
				return printJSON(rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows")
	cmd.Flags().StringVar(&q, "q", "", "Substring filter over document/rule/vendor/tail/airport/fee")
	cmd.Flags().StringVar(&status, "status", "", "Filter by alert status")
	cmd.Flags().StringVar(&slackStatus, "slack-status", "", "Filter by delivery status")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
