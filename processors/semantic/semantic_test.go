package semantic_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colstream/colstream/processors/semantic"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// termOverlapRanker is a trivial stand-in for an embedding-model Ranker:
// it scores a column 1.0 if its name contains any word of the query,
// otherwise 0.0. Good enough to exercise Processor's control flow without
// a real model dependency.
type termOverlapRanker struct{}

func (termOverlapRanker) RankColumns(query string, columns []string) ([]semantic.ColumnScore, error) {
	terms := strings.Fields(strings.ToLower(query))
	scores := make([]semantic.ColumnScore, len(columns))
	for i, col := range columns {
		lc := strings.ToLower(col)
		score := float32(0)
		for _, t := range terms {
			if strings.Contains(lc, t) {
				score = 1.0
				break
			}
		}
		scores[i] = semantic.ColumnScore{Column: col, Score: score}
	}
	return scores, nil
}

type errRanker struct{ err error }

func (r errRanker) RankColumns(query string, columns []string) ([]semantic.ColumnScore, error) {
	return nil, r.err
}

func obj(pairs ...any) record.Value {
	o := record.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(record.Value))
	}
	return record.ObjectOf(o)
}

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "user_email", Type: schema.Utf8},
		{Name: "order_total", Type: schema.Float64},
		{Name: "internal_debug_flag", Type: schema.Boolean},
	})
}

func TestSemanticProcessorPrunesBelowThreshold(t *testing.T) {
	p := semantic.New(termOverlapRanker{}, "user order", 0.5)
	s := testSchema()

	pruned, err := p.UpdateSchema(s)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned.Len())
	_, ok := pruned.FieldByName("internal_debug_flag")
	assert.False(t, ok)

	rec := obj(
		"user_email", record.String("a@b.com"),
		"order_total", record.Float64(10),
		"internal_debug_flag", record.Bool(true),
	)
	out, err := p.Process(context.Background(), rec)
	require.NoError(t, err)
	_, ok = out.Get("internal_debug_flag")
	assert.False(t, ok)
	_, ok = out.Get("user_email")
	assert.True(t, ok)
}

func TestSemanticProcessorFallsBackWhenNothingMeetsThreshold(t *testing.T) {
	p := semantic.New(termOverlapRanker{}, "nonexistent query terms", 0.5)
	s := testSchema()

	out, err := p.UpdateSchema(s)
	require.NoError(t, err)
	assert.Equal(t, s.Len(), out.Len())

	rec := obj("user_email", record.String("a@b.com"))
	result, err := p.Process(context.Background(), rec)
	require.NoError(t, err)
	_, ok := result.Get("user_email")
	assert.True(t, ok, "fallback must keep all columns, including those never ranked relevant")
}

func TestSemanticProcessorPropagatesRankerError(t *testing.T) {
	boom := errors.New("ranker unavailable")
	p := semantic.New(errRanker{boom}, "q", 0.5)

	_, err := p.UpdateSchema(testSchema())
	require.ErrorIs(t, err, boom)
}

func TestSemanticProcessorLeavesNonObjectRecordsUntouched(t *testing.T) {
	p := semantic.New(termOverlapRanker{}, "user", 0.5)
	_, err := p.UpdateSchema(testSchema())
	require.NoError(t, err)

	out, err := p.Process(context.Background(), record.String("not an object"))
	require.NoError(t, err)
	s, ok := out.AsString()
	require.True(t, ok)
	assert.Equal(t, "not an object", s)
}
