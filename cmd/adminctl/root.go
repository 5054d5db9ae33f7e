package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"plansync/internal/client"
)

var (
	baseURL string
	token   string
	timeout time.Duration

	rootCmd = &cobra.Command{
		Use:   "adminctl",
		Short: "Operator CLI for the plansync API",
		Long: `adminctl talks to the plansync admin endpoints: property count drift
reports, bulk count synchronization, single-user fixes and plan assignment.

The API base URL and admin token can be passed as flags or through the
PLANSYNC_API_URL and PLANSYNC_ADMIN_TOKEN environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = os.Getenv("PLANSYNC_API_URL")
			}
			if token == "" {
				token = os.Getenv("PLANSYNC_ADMIN_TOKEN")
			}
			if baseURL == "" {
				return fmt.Errorf("API base URL is required (--base-url or PLANSYNC_API_URL)")
			}
			if token == "" {
				return fmt.Errorf("admin token is required (--token or PLANSYNC_ADMIN_TOKEN)")
			}
			return nil
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "plansync API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "admin bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(syncAllCmd)
	rootCmd.AddCommand(fixUserCmd)
	rootCmd.AddCommand(planCmd)
}

// newClient builds the API client from the resolved global flags.
func newClient() *client.PlanUsageClient {
	return client.New(client.Config{
		BaseURL:     baseURL,
		HTTPTimeout: timeout,
		Tokens:      client.StaticTokenSource(token),
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
}
