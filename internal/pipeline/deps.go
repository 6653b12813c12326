package pipeline

import (
	"context"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/source"
)

// QueryBuilder produces the queries for one round of one phase.
type QueryBuilder interface {
	Queries(identity model.CompanyIdentity, phase model.Phase, round int) ([]model.SearchQuery, error)
}

// Aggregator runs queries against the search collaborator.
type Aggregator interface {
	Aggregate(ctx context.Context, queries []model.SearchQuery, opts ...source.AggregateOption) (*source.Result, error)
}

// Enricher adds page text to the top documents.
type Enricher interface {
	Enrich(ctx context.Context, docs []model.SourceDocument, topN int) []model.SourceDocument
}

// Scorer computes completeness.
type Scorer interface {
	Score(p model.Profile, schema model.Schema) model.CompletenessScore
}

// Merger combines phase profiles into a record.
type Merger interface {
	Merge(identity model.CompanyIdentity, inputs []model.PhaseProfile) (*model.MergedRecord, error)
}

// Exporter copies a persisted record to a secondary sink.
type Exporter interface {
	Export(ctx context.Context, rec *model.MergedRecord) (string, error)
}

// PhaseRunner runs the retry loop for a single phase.
type PhaseRunner interface {
	Run(ctx context.Context, identity model.CompanyIdentity, phase model.Phase, maxRetries int) (*model.PhaseResult, error)
}

type runIDKey struct{}

// WithRunID tags ctx with a run identifier that shows up in every log line
// of the run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run identifier carried by ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
