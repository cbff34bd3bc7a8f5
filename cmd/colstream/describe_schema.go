package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/colstream/colstream/infer"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/source"
)

func newDescribeSchemaCommand() *cobra.Command {
	var sourceType, sourcePath, sourceCompression string
	var scanRows int

	cmd := &cobra.Command{
		Use:   "describe-schema",
		Short: "Infer and print a schema without running a full job",
		Long: `describe-schema runs only the warm-up inference pass over up to
--scan-rows records and prints the resulting schema as JSON. Useful for
deciding on a warmup-rows/scan-rows budget before committing to a full run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return describeSchema(sourceType, sourcePath, sourceCompression, scanRows)
		},
	}

	cmd.Flags().StringVar(&sourceType, "source-type", "ndjson", "Source format: ndjson or msgpack")
	cmd.Flags().StringVar(&sourcePath, "source-path", "", "Input file path (\"-\" for stdin)")
	cmd.Flags().StringVar(&sourceCompression, "source-compression", "auto", "Input compression: auto, none, gzip, zstd")
	cmd.Flags().IntVar(&scanRows, "scan-rows", 100, "Number of records to scan for inference")

	return cmd
}

func describeSchema(sourceType, sourcePath, sourceCompression string, scanRows int) error {
	if sourcePath == "" {
		return fmt.Errorf("colstream: --source-path is required")
	}

	var r *os.File
	if sourcePath == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("colstream: open %q: %w", sourcePath, err)
		}
		defer f.Close()
		r = f
	}

	src, err := openSource(sourceType, sourcePath, sourceCompression, r)
	if err != nil {
		return err
	}

	records, err := scanRecords(src, scanRows)
	if err != nil {
		return fmt.Errorf("colstream: %w", err)
	}

	s, err := infer.Scan(records, scanRows)
	if err != nil {
		return fmt.Errorf("colstream: %w", err)
	}

	type fieldJSON struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Nullable bool   `json:"nullable"`
	}
	out := make([]fieldJSON, s.Len())
	for i, f := range s.Fields() {
		out[i] = fieldJSON{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func openSource(sourceType, sourcePath, compression string, r *os.File) (pipeline.Source, error) {
	logger := slog.Default()
	switch sourceType {
	case "", "ndjson":
		if compression == "" {
			compression = "auto"
		}
		var c source.Compression
		switch compression {
		case "auto":
			c = source.DetectCompression(sourcePath)
		case "none":
			c = source.CompressionNone
		case "gzip":
			c = source.CompressionGzip
		case "zstd":
			c = source.CompressionZstd
		default:
			return nil, fmt.Errorf("unknown source-compression %q", compression)
		}
		return source.NewNDJSONSourceCompressed(r, c, logger)
	case "msgpack":
		return source.NewMsgPackSource(r, logger), nil
	default:
		return nil, fmt.Errorf("unknown source-type %q", sourceType)
	}
}

func scanRecords(src pipeline.Source, limit int) ([]record.Value, error) {
	ctx := context.Background()
	records := make([]record.Value, 0, limit)
	for len(records) < limit {
		rec, err := src.NextRecord(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}
