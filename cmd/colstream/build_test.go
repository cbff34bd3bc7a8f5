package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colstream/colstream/record"
)

func TestToPipelineConfigRequiresSourcePath(t *testing.T) {
	fc := &flagConfig{sourceType: "ndjson", sinkType: "parquet"}
	_, err := fc.toPipelineConfig()
	require.Error(t, err)
}

func TestToPipelineConfigWiresOptionalProcessors(t *testing.T) {
	fc := &flagConfig{
		sourceType:        "ndjson",
		sourcePath:        "input.ndjson",
		sinkType:          "parquet",
		sinkPath:          "output.parquet",
		piiMode:           "hash",
		geonormalizeField: "location",
	}

	cfg, err := fc.toPipelineConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Processors, 2)
	assert.Equal(t, "pii", cfg.Processors[0].Type)
	assert.Equal(t, "hash", cfg.Processors[0].Mode)
	assert.Equal(t, "geonormalize", cfg.Processors[1].Type)
	assert.Equal(t, "location", cfg.Processors[1].Field)
}

type fakeSource struct {
	records []record.Value
	i       int
}

func (s *fakeSource) NextRecord(ctx context.Context) (*record.Value, error) {
	if s.i >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.i]
	s.i++
	return &r, nil
}

func TestScanRecordsStopsAtEOF(t *testing.T) {
	src := &fakeSource{records: []record.Value{record.Int64(1), record.Int64(2)}}
	out, err := scanRecords(src, 10)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestScanRecordsRespectsLimit(t *testing.T) {
	src := &fakeSource{records: []record.Value{record.Int64(1), record.Int64(2), record.Int64(3)}}
	out, err := scanRecords(src, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
