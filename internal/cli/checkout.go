package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bizdesk/bizdesk/pkg/client"
)

func newCheckoutCmd() *cobra.Command {
	var req client.CheckoutRequest

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Start a hosted checkout and print its URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := apiClient.CreateCheckout(context.Background(), req)
			if err != nil {
				return fmt.Errorf("checkout failed: %w", err)
			}
			if err := saveSession(); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			return renderCheckout(cmd.OutOrStdout(), getOutputFormat(), session)
		},
	}

	cmd.Flags().StringVar(&req.PriceID, "price", "", "provider price id")
	cmd.Flags().StringVar(&req.CustomerEmail, "email", "", "prefill the checkout email")
	cmd.Flags().StringVar(&req.IdempotencyKey, "idempotency-key", "", "make retries of this checkout safe")
	_ = cmd.MarkFlagRequired("price")

	return cmd
}

func renderCheckout(w io.Writer, format string, session *client.CheckoutSession) error {
	if format != "table" {
		return printOutput(w, format, session)
	}

	t := NewTable(w, "SESSION", "URL")
	t.AddRow(session.SessionID, session.URL)
	t.Render()
	return nil
}
