// Package config loads a YAML pipeline definition and builds a ready-to-run
// Runner from it, following the tagged-variant style of the original
// implementation's PipelineConfig/SourceConfig/ProcessorConfig/SinkConfig
// and the teacher's own preference for gopkg.in/yaml.v3-backed config
// structs (ServerConfig in the teacher repo plays the analogous role for
// its Flight server).
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/colstream/colstream"
	"github.com/colstream/colstream/dlq"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/processors/geonormalize"
	"github.com/colstream/colstream/processors/pii"
	"github.com/colstream/colstream/processors/semantic"
	"github.com/colstream/colstream/runner"
	"github.com/colstream/colstream/sink"
	"github.com/colstream/colstream/source"
)

// PipelineConfig is the top-level YAML document describing one run: where
// records come from, what transforms them, where batches land, and where
// rejects go.
type PipelineConfig struct {
	// BatchSize is the Runner's batch size. Zero uses the Runner default.
	BatchSize int `yaml:"batch_size,omitempty"`
	// WarmupRows is the Runner's warm-up prefix size. Zero uses the Runner
	// default.
	WarmupRows int `yaml:"warmup_rows,omitempty"`
	// Parallelism bounds MAIN-phase concurrency. Zero uses the Runner
	// default (2x NumCPU).
	Parallelism int `yaml:"parallelism,omitempty"`

	// Source describes where records are read from. REQUIRED.
	Source SourceConfig `yaml:"source"`
	// Sink describes where batches are written. REQUIRED.
	Sink SinkConfig `yaml:"sink"`
	// DeadLetter describes where rejected records go. OPTIONAL: if nil,
	// rejects are logged and dropped.
	DeadLetter *DeadLetterConfig `yaml:"dead_letter,omitempty"`
	// Processors is the ordered transform chain applied to every record.
	Processors []ProcessorConfig `yaml:"processors,omitempty"`
}

// SourceConfig selects and configures a Source implementation.
type SourceConfig struct {
	// Type is "ndjson" or "msgpack".
	Type string `yaml:"type"`
	// Path is the input file. "-" reads from stdin.
	Path string `yaml:"path"`
	// Compression is "none", "gzip", "zstd", or "auto" (detect from Path's
	// extension). Only meaningful for Type "ndjson". Defaults to "auto".
	Compression string `yaml:"compression,omitempty"`
}

// SinkConfig selects and configures a Sink implementation.
type SinkConfig struct {
	// Type is "parquet", "duckdb", or "memory".
	Type string `yaml:"type"`
	// Path is the output file (Parquet) or database (DuckDB). Unused for
	// "memory".
	Path string `yaml:"path,omitempty"`
	// Table is the destination table name. Only meaningful for "duckdb".
	Table string `yaml:"table,omitempty"`
}

// DeadLetterConfig selects and configures a DLQ implementation.
type DeadLetterConfig struct {
	// Type is "file" (JSONL) or "msgpack".
	Type string `yaml:"type"`
	// Path is the dead-letter output file.
	Path string `yaml:"path"`
	// Compress zstd-compresses the output. Only meaningful for Type
	// "file".
	Compress bool `yaml:"compress,omitempty"`
}

// ProcessorConfig selects and configures one entry in the processor chain.
// Fields not relevant to Type are ignored.
type ProcessorConfig struct {
	// Type is "pii", "geonormalize", or "semantic".
	Type string `yaml:"type"`

	// Mode selects pii's replacement strategy: "mask" or "hash".
	Mode string `yaml:"mode,omitempty"`

	// Field is the target column for geonormalize.
	Field string `yaml:"field,omitempty"`

	// Query, Threshold, and Ranker configure semantic. Ranker names an
	// entry in the Rankers map passed to Build — the embedding model
	// itself is an external collaborator this package cannot construct
	// from YAML alone.
	Query     string  `yaml:"query,omitempty"`
	Threshold float32 `yaml:"threshold,omitempty"`
	Ranker    string  `yaml:"ranker,omitempty"`
}

// Load reads and parses a PipelineConfig from a YAML file.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return &cfg, nil
}

// Build constructs a runner.Runner from cfg. rankers supplies the
// semantic.Ranker implementations config-driven "semantic" processor
// entries name by Ranker; it may be nil if no such entry is configured.
func (c *PipelineConfig) Build(logger *slog.Logger, rankers map[string]semantic.Ranker) (*runner.Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := c.buildSource(logger)
	if err != nil {
		return nil, err
	}
	factory, err := c.buildSinkFactory()
	if err != nil {
		return nil, err
	}

	b := colstream.NewBuilder(src, factory).Logger(logger)
	if c.BatchSize > 0 {
		b = b.BatchSize(c.BatchSize)
	}
	if c.WarmupRows > 0 {
		b = b.WarmupRows(c.WarmupRows)
	}
	if c.Parallelism > 0 {
		b = b.Parallelism(c.Parallelism)
	}

	if c.DeadLetter != nil {
		d, err := c.buildDLQ()
		if err != nil {
			return nil, err
		}
		b = b.DeadLetterQueue(d)
	}

	for i, pc := range c.Processors {
		p, err := pc.build(rankers)
		if err != nil {
			return nil, fmt.Errorf("config: processor[%d]: %w", i, err)
		}
		b = b.Processor(p)
	}

	return b.Build()
}

func (c *PipelineConfig) buildSource(logger *slog.Logger) (pipeline.Source, error) {
	sc := c.Source
	if sc.Path == "" {
		return nil, fmt.Errorf("config: source.path is required")
	}

	var r *os.File
	if sc.Path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("config: open source %q: %w", sc.Path, err)
		}
		r = f
	}

	switch sc.Type {
	case "", "ndjson":
		compression := sc.Compression
		if compression == "" {
			compression = "auto"
		}
		var c source.Compression
		switch compression {
		case "auto":
			c = source.DetectCompression(sc.Path)
		case "none":
			c = source.CompressionNone
		case "gzip":
			c = source.CompressionGzip
		case "zstd":
			c = source.CompressionZstd
		default:
			return nil, fmt.Errorf("config: unknown source.compression %q", sc.Compression)
		}
		return source.NewNDJSONSourceCompressed(r, c, logger)
	case "msgpack":
		return source.NewMsgPackSource(r, logger), nil
	default:
		return nil, fmt.Errorf("config: unknown source.type %q", sc.Type)
	}
}

func (c *PipelineConfig) buildSinkFactory() (pipeline.Factory, error) {
	sc := c.Sink
	switch sc.Type {
	case "parquet":
		if sc.Path == "" {
			return nil, fmt.Errorf("config: sink.path is required for type parquet")
		}
		return sink.ParquetFileFactory(sc.Path), nil
	case "duckdb":
		if sc.Path == "" || sc.Table == "" {
			return nil, fmt.Errorf("config: sink.path and sink.table are required for type duckdb")
		}
		return sink.DuckDBFileFactory(sc.Path, sc.Table), nil
	case "memory":
		return sink.MemoryFactory(), nil
	default:
		return nil, fmt.Errorf("config: unknown sink.type %q", sc.Type)
	}
}

func (c *PipelineConfig) buildDLQ() (pipeline.DLQ, error) {
	dc := c.DeadLetter
	if dc.Path == "" {
		return nil, fmt.Errorf("config: dead_letter.path is required")
	}
	switch dc.Type {
	case "", "file":
		return dlq.NewFileDLQ(dc.Path, dc.Compress)
	case "msgpack":
		return dlq.NewMsgPackDLQ(dc.Path)
	default:
		return nil, fmt.Errorf("config: unknown dead_letter.type %q", dc.Type)
	}
}

func (pc *ProcessorConfig) build(rankers map[string]semantic.Ranker) (pipeline.Processor, error) {
	switch pc.Type {
	case "pii":
		mode := pii.Mask
		switch pc.Mode {
		case "", "mask":
			mode = pii.Mask
		case "hash":
			mode = pii.Hash
		default:
			return nil, fmt.Errorf("unknown pii mode %q", pc.Mode)
		}
		return pii.New(mode), nil
	case "geonormalize":
		if pc.Field == "" {
			return nil, fmt.Errorf("geonormalize requires field")
		}
		return geonormalize.New(pc.Field), nil
	case "semantic":
		ranker, ok := rankers[pc.Ranker]
		if !ok {
			return nil, fmt.Errorf("semantic processor references unknown ranker %q", pc.Ranker)
		}
		return semantic.New(ranker, pc.Query, pc.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown processor type %q", pc.Type)
	}
}
