package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one ingestion run and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.pipeline.Run(ctx)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)

		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
