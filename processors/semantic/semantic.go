// Package semantic provides the column-pruning Processor contract driven
// by a relevance ranking of column names against a query — the embedding
// model itself is an external collaborator injected as a Ranker.
package semantic

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// ColumnScore pairs a column name with its relevance score against the
// configured query.
type ColumnScore struct {
	Column string
	Score  float32
}

// Ranker scores every column name's relevance to query. The real
// implementation is an embedding model external to this package; callers
// inject whichever Ranker fits their deployment.
type Ranker interface {
	RankColumns(query string, columns []string) ([]ColumnScore, error)
}

// Processor prunes columns whose ranked relevance score falls below
// Threshold, evaluated once in UpdateSchema and applied per-record in
// Process. The keep-set is written once (before MAIN begins) and read
// lock-free afterward via a sync.Once-guarded pointer — the same
// publication discipline the original's Arc<Mutex<Option<HashSet>>>
// achieves with a mutex, but without lock contention on the read side
// once the set is published.
type Processor struct {
	Ranker    Ranker
	Query     string
	Threshold float32
	Logger    *slog.Logger

	once    sync.Once
	keepSet map[string]struct{}
	pruning bool
}

// New returns a Processor that queries ranker for relevance once, in
// UpdateSchema.
func New(ranker Ranker, query string, threshold float32) *Processor {
	return &Processor{Ranker: ranker, Query: query, Threshold: threshold}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// UpdateSchema ranks every field name against Query, keeps the fields
// scoring at or above Threshold, and publishes the keep-set for Process to
// read lock-free. If no column meets the threshold, all columns are kept
// as a fallback and the schema passes through unchanged.
func (p *Processor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	names := make([]string, s.Len())
	for i, f := range s.Fields() {
		names[i] = f.Name
	}

	ranked, err := p.Ranker.RankColumns(p.Query, names)
	if err != nil {
		return nil, err
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	keep := make(map[string]struct{})
	var relevant []schema.Field
	for _, cs := range ranked {
		if cs.Score >= p.Threshold {
			p.logger().Debug("keeping column", "column", cs.Column, "score", cs.Score)
			keep[cs.Column] = struct{}{}
			if f, ok := s.FieldByName(cs.Column); ok {
				relevant = append(relevant, f)
			}
		} else {
			p.logger().Debug("dropping column", "column", cs.Column, "score", cs.Score)
		}
	}

	if len(relevant) == 0 {
		p.logger().Warn("no columns met threshold, keeping all columns as fallback")
		p.once.Do(func() {})
		return s, nil
	}

	p.once.Do(func() {
		p.keepSet = keep
		p.pruning = true
	})

	p.logger().Info("schema pruned semantically", "original", s.Len(), "pruned", len(relevant))
	return schema.New(relevant), nil
}

// Process drops every field not in the published keep-set. Safe for
// concurrent use: keepSet/pruning are written exactly once, by
// UpdateSchema, before any Process call in the run.
func (p *Processor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if !p.pruning || !rec.IsObject() {
		return &rec, nil
	}

	out := record.NewObject()
	rec.Object.Range(func(key string, v record.Value) bool {
		if _, ok := p.keepSet[key]; ok {
			out.Set(key, v)
		}
		return true
	})
	pruned := record.ObjectOf(out)
	return &pruned, nil
}
