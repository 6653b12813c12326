package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mergeIdentity identityFlags
	mergeExport   bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run every phase concurrently, merge the profiles and persist the record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		identity, err := mergeIdentity.identity()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "merge", mergeExport)
		if err != nil {
			return err
		}
		defer env.Close()

		out, runErr := env.Coordinator.Run(ctx, identity)
		if out != nil && out.Record != nil {
			if err := writeJSON(os.Stdout, out); err != nil {
				return eris.Wrap(err, "write record")
			}
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("merge complete",
			zap.String("company_id", out.Record.CompanyID),
			zap.String("run_id", out.RunID),
			zap.Int("fields", len(out.Record.Fields)),
			zap.String("export_key", out.ExportKey),
		)
		return nil
	},
}

func init() {
	mergeIdentity.register(mergeCmd)
	mergeCmd.Flags().BoolVar(&mergeExport, "export", false, "also upload the merged record to S3")
	_ = mergeCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(mergeCmd)
}
