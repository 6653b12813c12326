package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	latestCompanyID string
	latestHistory   int
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent merged record for a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("latest"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if latestHistory > 0 {
			recs, err := st.History(ctx, latestCompanyID, latestHistory)
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, recs)
		}

		rec, err := st.Latest(ctx, latestCompanyID)
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("no record for company %q", latestCompanyID)
		}
		return writeJSON(os.Stdout, rec)
	},
}

func init() {
	latestCmd.Flags().StringVar(&latestCompanyID, "company-id", "", "company identifier (slug of the company name)")
	latestCmd.Flags().IntVar(&latestHistory, "history", 0, "list up to N versions, newest first, instead of the latest one")
	_ = latestCmd.MarkFlagRequired("company-id")
	rootCmd.AddCommand(latestCmd)
}
