package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write a server's snapshot as JSONL to stdout, a file, or S3",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		bucket, _ := cmd.Flags().GetString("s3-bucket")
		key, _ := cmd.Flags().GetString("s3-key")
		region, _ := cmd.Flags().GetString("s3-region")
		endpoint, _ := cmd.Flags().GetString("s3-endpoint")
		ctx := cmd.Context()

		var dests []export.Destination
		if out != "" {
			dests = append(dests, export.NewFileDestination(out))
		}
		if bucket != "" {
			d, err := export.NewS3Destination(ctx, bucket, key, region, endpoint)
			if err != nil {
				return err
			}
			dests = append(dests, d)
		}

		snap, err := client.NewHTTPClient(serverURL, authToken).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("getting snapshot: %w", err)
		}

		if len(dests) == 0 {
			return export.WriteJSONL(cmd.OutOrStdout(), *snap)
		}

		var buf bytes.Buffer
		if err := export.WriteJSONL(&buf, *snap); err != nil {
			return err
		}
		var errs []error
		for _, d := range dests {
			if err := d.Write(ctx, buf.Bytes()); err != nil {
				errs = append(errs, fmt.Errorf("%v: %w", d, err))
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d bytes to %v\n", buf.Len(), d)
		}
		return errors.Join(errs...)
	},
}

func init() {
	exportCmd.Flags().String("out", "", "write to this file instead of stdout")
	exportCmd.Flags().String("s3-bucket", "", "upload to this S3 bucket")
	exportCmd.Flags().String("s3-key", "spamwatch/export.jsonl", "S3 object key")
	exportCmd.Flags().String("s3-region", "us-east-1", "S3 region")
	exportCmd.Flags().String("s3-endpoint", "", "custom S3 endpoint (e.g. MinIO)")
}
