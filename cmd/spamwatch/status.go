package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/client"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show a spamwatch server's connection and counters",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client.NewHTTPClient(serverURL, authToken).Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting status: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		return printStatusTable(cmd.OutOrStdout(), st)
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Short:   "Print the dashboard series and transaction log",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		useGRPC, _ := cmd.Flags().GetBool("use-grpc")

		if useGRPC {
			c, err := client.NewGRPCClient(grpcAddr, authToken)
			if err != nil {
				return err
			}
			defer c.Close()
			snap, err := c.Snapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("getting snapshot: %w", err)
			}
			return printProtoJSON(cmd.OutOrStdout(), snap)
		}

		snap, err := client.NewHTTPClient(serverURL, authToken).Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting snapshot: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		printSnapshot(cmd.OutOrStdout(), snap, limit)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().Int("limit", 20, "rows per series and transaction log (0 = all)")
	snapshotCmd.Flags().Bool("use-grpc", false, "fetch over gRPC and print the protobuf JSON form")
}
