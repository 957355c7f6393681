package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/config"
	"github.com/alfredjeanlab/spamwatch/internal/ui"
)

var (
	spammerURL string
	serverURL  string
	grpcAddr   string
	authToken  string
	jsonOutput bool
)

func defaultSpammerURL() string {
	if s := os.Getenv("SPAMWATCH_URL"); s != "" {
		return s
	}
	if s := activeRemoteURL(); s != "" {
		return s
	}
	return config.DefaultURL
}

func defaultServer() string {
	if s := os.Getenv("SPAMWATCH_SERVER"); s != "" {
		return s
	}
	if s := activeRemoteServer(); s != "" {
		return s
	}
	return "http://localhost:9090"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("SPAMWATCH_GRPC"); s != "" {
		return s
	}
	if s := activeRemoteGRPC(); s != "" {
		return s
	}
	return "localhost:9091"
}

func defaultToken() string {
	if s := os.Getenv("SPAMWATCH_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:           "spamwatch",
	Short:         "Live telemetry client for the transaction spammer",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!jsonOutput && ui.ShouldUseColor(os.Stdout))
	},
}

// loadConfig reads SPAMWATCH_* settings, applies the command-line overrides
// and installs the resulting logger as the slog default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.URL = spammerURL
	cfg.AuthToken = authToken
	if cfg.NATSURL == "" {
		cfg.NATSURL = activeRemoteNATSURL()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := cfg.BuildLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&spammerURL, "url", defaultSpammerURL(), "spammer WebSocket endpoint")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "spamwatch HTTP server base URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", defaultGRPCAddr(), "spamwatch gRPC server address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for the spamwatch server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "live", Title: "Live Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
