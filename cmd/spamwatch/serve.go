package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/monitor"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Watch the spammer and serve telemetry over HTTP and gRPC",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("http-addr") {
			cfg.HTTPAddr, _ = cmd.Flags().GetString("http-addr")
		}
		if cmd.Flags().Changed("grpc-addr") {
			cfg.GRPCAddr, _ = cmd.Flags().GetString("grpc-addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := monitor.New(cfg, logger)
		if err != nil {
			return err
		}
		defer m.Close()

		httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.HTTPAddr, err)
		}
		grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listening on %s: %w", cfg.GRPCAddr, err)
		}

		if err := m.Start(ctx); err != nil {
			httpLis.Close()
			grpcLis.Close()
			return err
		}
		logger.Info("spamwatch serving",
			"spammer", cfg.URL,
			"http", httpLis.Addr().String(),
			"grpc", grpcLis.Addr().String(),
			"nats", cfg.NATSURL != "",
			"export", cfg.ExportEnabled())
		return m.Serve(ctx, httpLis, grpcLis)
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides SPAMWATCH_HTTP_ADDR)")
	serveCmd.Flags().String("grpc-addr", "", "gRPC listen address (overrides SPAMWATCH_GRPC_ADDR)")
}
