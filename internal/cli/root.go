package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bizdesk/bizdesk/pkg/client"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	apiClient    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "bizdesk",
	Short: "BizDesk CLI - subscription checkout and entitlement tooling",
	Long: `BizDesk CLI talks to a BizDesk server to start hosted checkouts and read
the signed-in user's subscription status. It can also mint development
session tokens.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Config and token commands work offline
		if cmd.Parent() != nil && (cmd.Parent().Name() == "config" || cmd.Parent().Name() == "token") {
			return nil
		}
		return initClient()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.bizdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides config)")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCheckoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newHealthCmd())
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bizdesk"), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		_ = os.MkdirAll(dir, 0700)
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BIZDESK")
	viper.AutomaticEnv()

	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("output", "table")
	viper.SetDefault("session.access_cookie", client.DefaultAccessCookie)
	viper.SetDefault("session.refresh_cookie", client.DefaultRefreshCookie)

	_ = viper.ReadInConfig()
}

func initClient() error {
	url := viper.GetString("server_url")
	if serverURL != "" {
		url = serverURL
	}

	apiClient = client.NewClient(client.Config{
		BaseURL:       url,
		AccessCookie:  viper.GetString("session.access_cookie"),
		RefreshCookie: viper.GetString("session.refresh_cookie"),
	})
	apiClient.SetSession(viper.GetString("session.access_token"), viper.GetString("session.refresh_token"))
	return nil
}

// saveSession persists tokens the server re-issued during a command
func saveSession() error {
	access, refresh := apiClient.Session()
	if access == viper.GetString("session.access_token") && refresh == viper.GetString("session.refresh_token") {
		return nil
	}
	viper.Set("session.access_token", access)
	viper.Set("session.refresh_token", refresh)
	return writeConfig()
}

func getOutputFormat() string {
	if outputFormat != "" && outputFormat != "table" {
		return outputFormat
	}
	return viper.GetString("output")
}
