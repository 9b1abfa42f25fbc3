package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hazard-data-pipeline/internal/normalize"
	"github.com/couchcryptid/hazard-data-pipeline/internal/reader"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and dry-run every source without committing",
	Long: "Loads the configuration, reads every configured source, and normalizes " +
		"each row. Reports row and rejection counts per source. The store is never " +
		"touched, so validate is safe to run against production config.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		failed := false

		for _, src := range cfg.Sources {
			r, err := reader.ForFormat(src.Format)
			if err != nil {
				return err
			}

			records, stats, err := r.Read(ctx, src)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %-24s FAIL: %v\n", src.ID, err)
				failed = true
				continue
			}

			n := normalize.New(src)
			rejected := 0
			for _, raw := range records {
				if _, err := n.Normalize(raw); err != nil {
					rejected++
				}
			}

			fmt.Printf("  %-24s %d rows, %d malformed, %d rejected\n",
				src.ID, stats.Rows, stats.Malformed, rejected)
		}

		if failed {
			return fmt.Errorf("one or more sources are unavailable")
		}
		fmt.Println("configuration OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
