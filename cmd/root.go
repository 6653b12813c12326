package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/config"
)

var cfg *config.Config

// Flag overrides applied on top of config.yaml and PROFILE_* env vars.
var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "company-profiler",
	Short: "Company profile extraction engine",
	Long:  "Searches regulatory filings, the open web and company websites, extracts structured company profiles with Claude, scores their completeness, and merges the phases into one persisted record.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(logLevel, logFormat)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log.format (json, console)")
}

// setup loads configuration, applies flag overrides and installs the global
// logger.
func setup(level, format string) (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if level != "" {
		c.Log.Level = level
	}
	if format != "" {
		c.Log.Format = format
	}
	if err := config.InitLogger(c.Log); err != nil {
		return nil, eris.Wrap(err, "init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("store", c.Store.Driver),
		zap.Strings("phases", c.Orchestrator.Phases),
	)
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
