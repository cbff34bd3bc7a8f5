package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colstream/colstream/config"
)

// flagConfig mirrors config.PipelineConfig's shape as individual flags, for
// runs that skip a YAML file entirely.
type flagConfig struct {
	sourceType        string
	sourcePath        string
	sourceCompression string

	sinkType  string
	sinkPath  string
	sinkTable string

	dlqType     string
	dlqPath     string
	dlqCompress bool

	batchSize   int
	warmupRows  int
	parallelism int

	piiMode           string
	geonormalizeField string
}

func addPipelineFlags(cmd *cobra.Command, fc *flagConfig) {
	cmd.Flags().StringVar(&fc.sourceType, "source-type", getEnvOrDefault("COLSTREAM_SOURCE_TYPE", "ndjson"), "Source format: ndjson or msgpack")
	cmd.Flags().StringVar(&fc.sourcePath, "source-path", getEnvOrDefault("COLSTREAM_SOURCE_PATH", ""), "Input file path (\"-\" for stdin)")
	cmd.Flags().StringVar(&fc.sourceCompression, "source-compression", getEnvOrDefault("COLSTREAM_SOURCE_COMPRESSION", "auto"), "Input compression: auto, none, gzip, zstd")

	cmd.Flags().StringVar(&fc.sinkType, "sink-type", "parquet", "Sink type: parquet, duckdb, or memory")
	cmd.Flags().StringVar(&fc.sinkPath, "sink-path", "", "Output file (parquet) or database (duckdb) path")
	cmd.Flags().StringVar(&fc.sinkTable, "sink-table", "", "Destination table name (duckdb only)")

	cmd.Flags().StringVar(&fc.dlqType, "dlq-type", "", "Dead-letter queue type: file or msgpack (unset disables the DLQ)")
	cmd.Flags().StringVar(&fc.dlqPath, "dlq-path", "", "Dead-letter output path")
	cmd.Flags().BoolVar(&fc.dlqCompress, "dlq-compress", false, "zstd-compress dead-letter output (file type only)")

	cmd.Flags().IntVar(&fc.batchSize, "batch-size", 0, "Records per batch (0 uses the runner default)")
	cmd.Flags().IntVar(&fc.warmupRows, "warmup-rows", 0, "Warm-up prefix size for schema inference (0 uses the runner default)")
	cmd.Flags().IntVar(&fc.parallelism, "parallelism", 0, "Bound on concurrent main-phase records (0 uses the runner default)")

	cmd.Flags().StringVar(&fc.piiMode, "pii-mode", "", "Enable email masking: mask or hash (unset disables the processor)")
	cmd.Flags().StringVar(&fc.geonormalizeField, "geonormalize-field", "", "Enable geometry normalization on the named field (unset disables the processor)")
}

// toPipelineConfig translates parsed flags into the same PipelineConfig a
// YAML file would produce.
func (fc *flagConfig) toPipelineConfig() (*config.PipelineConfig, error) {
	if fc.sourcePath == "" {
		return nil, fmt.Errorf("--source-path is required")
	}

	cfg := &config.PipelineConfig{
		BatchSize:   fc.batchSize,
		WarmupRows:  fc.warmupRows,
		Parallelism: fc.parallelism,
		Source: config.SourceConfig{
			Type:        fc.sourceType,
			Path:        fc.sourcePath,
			Compression: fc.sourceCompression,
		},
		Sink: config.SinkConfig{
			Type:  fc.sinkType,
			Path:  fc.sinkPath,
			Table: fc.sinkTable,
		},
	}

	if fc.dlqType != "" {
		cfg.DeadLetter = &config.DeadLetterConfig{
			Type:     fc.dlqType,
			Path:     fc.dlqPath,
			Compress: fc.dlqCompress,
		}
	}

	if fc.piiMode != "" {
		cfg.Processors = append(cfg.Processors, config.ProcessorConfig{Type: "pii", Mode: fc.piiMode})
	}
	if fc.geonormalizeField != "" {
		cfg.Processors = append(cfg.Processors, config.ProcessorConfig{Type: "geonormalize", Field: fc.geonormalizeField})
	}

	return cfg, nil
}

// loadPipelineConfig resolves a PipelineConfig either from configPath, if
// set, or from the flags collected in fc.
func loadPipelineConfig(configPath string, fc *flagConfig) (*config.PipelineConfig, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return fc.toPipelineConfig()
}
