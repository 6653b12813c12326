package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/model"
)

// identityFlags are shared by every command that profiles a company.
type identityFlags struct {
	name     string
	ticker   string
	website  string
	location string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "company name (required)")
	cmd.Flags().StringVar(&f.ticker, "ticker", "", "stock ticker symbol")
	cmd.Flags().StringVar(&f.website, "website", "", "company website URL")
	cmd.Flags().StringVar(&f.location, "location", "", "headquarters location, used to pick the regulator")
}

func (f *identityFlags) identity() (model.CompanyIdentity, error) {
	return model.NewCompanyIdentity(f.name, f.ticker, f.website, f.location)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	runIdentity   identityFlags
	runPhase      string
	runMaxRetries int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction phase for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		identity, err := runIdentity.identity()
		if err != nil {
			return err
		}
		phase, err := model.ParsePhase(runPhase)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run", false)
		if err != nil {
			return err
		}
		defer env.Close()

		maxRetries := runMaxRetries
		if maxRetries < 0 {
			maxRetries = env.Orchestrator.MaxRetries()
		}

		result, runErr := env.Orchestrator.Run(ctx, identity, phase, maxRetries)
		if result != nil {
			if err := writeJSON(os.Stdout, result); err != nil {
				return eris.Wrap(err, "write result")
			}
			if result.BelowThreshold() {
				zap.L().Warn("completeness below threshold",
					zap.String("company_id", result.CompanyID),
					zap.String("phase", string(phase)),
					zap.Float64("percentage", result.Score.Percentage),
					zap.String("status", string(result.Score.Status)),
				)
			}
		}
		return runErr
	},
}

func init() {
	runIdentity.register(runCmd)
	runCmd.Flags().StringVar(&runPhase, "phase", string(model.PhaseRegulatory), "phase to run: regulatory, general or website")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "retry rounds after the first (default from config)")
	_ = runCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(runCmd)
}
