// Command hazardetl ingests heterogeneous hazard report files into a single
// deduplicated store of canonical hazard records.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
