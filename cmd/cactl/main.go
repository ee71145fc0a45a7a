// Package main はCA操作CLIのエントリポイント。
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pki-ca-service/internal/infra"
)

var (
	apiURL  string
	user    string
	output  string
	timeout time.Duration
)

var client *apiClient

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "cactl",
		Short:        "PKI CA Service CLI",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("CACTL_API_URL")
			}
			if user == "" {
				user = os.Getenv("CACTL_USER")
			}
			client = newAPIClient(apiURL, user, &http.Client{Timeout: timeout})
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set CACTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "Username sent as X-User (or set CACTL_USER)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(
		registerCmd(),
		challengeCmd(),
		loginCmd(),
		csrChallengeCmd(),
		applyCmd(),
		approveCmd(),
		rejectCmd(),
		revokeCmd(),
		approveRevocationCmd(),
		rejectRevocationCmd(),
		listCmd(),
		statusCmd(),
		verifyCmd(),
		downloadCmd(),
		crlCmd(),
		keygenCmd(),
		csrCmd(),
		signCmd(),
		sealKeyCmd(),
		migrateCmd(),
		versionCmd(),
	)
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cactl version %s\n", infra.ServiceVersion)
		},
	}
}
