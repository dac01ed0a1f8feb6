package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/bizdesk/bizdesk/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage development session tokens",
	}

	cmd.AddCommand(newTokenMintCmd())
	cmd.AddCommand(newTokenClearCmd())

	return cmd
}

type mintOptions struct {
	userID     string
	email      string
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	save       bool
}

func newTokenMintCmd() *cobra.Command {
	var opts mintOptions

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint session tokens signed with the server's JWT secret",
		Long: `Mint an access/refresh token pair for a user, signed with the same secret
as the server (JWT_SECRET). With --save the tokens are stored in the CLI
config and sent as session cookies by later commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.secret == "" {
				opts.secret = viper.GetString("jwt_secret")
			}
			if opts.secret == "" {
				opts.secret = promptSecret(cmd.ErrOrStderr(), "JWT secret: ")
			}
			if opts.secret == "" {
				return fmt.Errorf("a JWT secret is required (--secret or BIZDESK_JWT_SECRET)")
			}

			pair, err := auth.MintTokens(opts.userID, opts.email, opts.secret, time.Now(), opts.accessTTL, opts.refreshTTL)
			if err != nil {
				return fmt.Errorf("failed to mint tokens: %w", err)
			}

			if opts.save {
				viper.Set("session.access_token", pair.AccessToken)
				viper.Set("session.refresh_token", pair.RefreshToken)
				if err := writeConfig(); err != nil {
					return fmt.Errorf("failed to save tokens: %w", err)
				}
			}

			return renderTokens(cmd.OutOrStdout(), getOutputFormat(), pair)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "user id to sign in as")
	cmd.Flags().StringVar(&opts.email, "email", "", "email claim")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "JWT signing secret")
	cmd.Flags().DurationVar(&opts.accessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	cmd.Flags().DurationVar(&opts.refreshTTL, "refresh-ttl", 7*24*time.Hour, "refresh token lifetime")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the tokens in the CLI config")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newTokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove stored session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("session.access_token", "")
			viper.Set("session.refresh_token", "")
			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to clear tokens: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session tokens cleared")
			return nil
		},
	}
}

func renderTokens(w io.Writer, format string, pair auth.TokenPair) error {
	if format != "table" {
		return printOutput(w, format, pair)
	}

	t := NewTable(w, "COOKIE", "EXPIRES", "VALUE")
	t.AddRow(viper.GetString("session.access_cookie"), pair.AccessExpiresAt.Format(time.RFC3339), pair.AccessToken)
	t.AddRow(viper.GetString("session.refresh_cookie"), pair.RefreshExpiresAt.Format(time.RFC3339), pair.RefreshToken)
	t.Render()
	return nil
}

func promptSecret(w io.Writer, prompt string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprint(w, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return ""
	}
	return string(secret)
}
