package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bizdesk/bizdesk/pkg/client"
)

func newStatusCmd() *cobra.Command {
	var checkoutSessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user's subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.SubscriptionStatus(context.Background(), checkoutSessionID)
			if err != nil {
				return fmt.Errorf("failed to read subscription status: %w", err)
			}
			if err := saveSession(); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			return renderStatus(cmd.OutOrStdout(), getOutputFormat(), status)
		},
	}

	cmd.Flags().StringVar(&checkoutSessionID, "session-id", "", "checkout session id from the return URL")

	return cmd
}

func renderStatus(w io.Writer, format string, status *client.SubscriptionStatus) error {
	if format != "table" {
		return printOutput(w, format, status)
	}

	if status.Subscription == nil {
		fmt.Fprintln(w, status.Message)
		return nil
	}

	s := status.Subscription
	t := NewTable(w, "PLAN", "STATUS", "PRICE", "PERIOD", "NEXT BILLING", "SUBSCRIPTION")
	t.AddRow(s.Plan, formatStatus(s.Status), s.Price, s.BillingPeriod, s.NextBillingDate, deref(s.SubscriptionID))
	t.Render()

	if status.Message != "" {
		fmt.Fprintf(w, "\n%s\n", status.Message)
	}
	return nil
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := apiClient.Health(context.Background())
			if err != nil {
				return fmt.Errorf("server not ready: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(cmd.OutOrStdout(), format, health)
			}

			t := NewTable(cmd.OutOrStdout(), "STATUS", "DATABASE", "REDIS")
			redis := health.Redis
			if redis == "" {
				redis = "disabled"
			}
			t.AddRow(health.Status, health.Database, redis)
			t.Render()
			return nil
		},
	}
}
