package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
	"github.com/icaroo-oliveira/HermesAI/internal/google"
)

var authAddr string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize external services",
}

var authGoogleCmd = &cobra.Command{
	Use:   "google",
	Short: "Authorize Google Calendar and Gmail access",
	Args:  cobra.NoArgs,
	RunE:  runAuthGoogle,
}

func init() {
	authGoogleCmd.Flags().StringVar(&authAddr, "addr", "127.0.0.1:8080", "Local address for the OAuth redirect")
	authCmd.AddCommand(authGoogleCmd)
}

func runAuthGoogle(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	oauthCfg, err := google.LoadOAuthConfig(cfg.Google.CredentialsFile)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	err = google.Authorize(ctx, oauthCfg, authAddr, cfg.Google.TokenFile, func(url string) {
		fmt.Fprintf(out, "Open this URL in your browser to grant access:\n\n%s\n\n", url)
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	fmt.Fprintf(out, "Token saved to %s\n", cfg.Google.TokenFile)
	return nil
}
