package main

import (
	"log/slog"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/observability"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hazardetl",
	Short: "Hazard report ingestion pipeline",
	Long: "Reads hazard report exports (CSV, NDJSON, XLSX), normalizes them onto a " +
		"canonical schema, resolves coordinates, merges duplicate reports, and " +
		"commits the result to a shared store.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c
		logger = observability.NewLogger(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ./config.yaml)")
}
