package main

import (
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/server"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check whether a spamwatch server is connected to its spammer",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")

		c, err := client.NewGRPCClient(grpcAddr, authToken)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Check(cmd.Context(), service)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printProtoJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", resp.GetStatus())
		}

		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("unhealthy: %s", resp.GetStatus())
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("service", server.TelemetryServiceName, "service name to check (empty for overall)")
}
