// Command colstream runs a streaming NDJSON-to-columnar pipeline, either
// from a YAML configuration file or entirely from command-line flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "colstream",
		Short: "Stream NDJSON (and kindred row formats) into columnar output",
		Long: `colstream ingests line-delimited JSON or length-prefixed MessagePack,
infers a schema from a bounded warm-up prefix (or accepts one you supply),
runs a configurable per-record processor chain, and writes columnar batches
to Parquet or an embedded DuckDB table, routing failed records to a
dead-letter queue.`,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("colstream %s (commit: %s)\n", version, commit)
		},
	}

	rootCmd.AddCommand(newRunCommand(), newDescribeSchemaCommand(), versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
