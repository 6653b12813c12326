package pipeline

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-profiler/internal/extract"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/scorer"
	"github.com/sells-group/company-profiler/internal/source"
)

// --- Searcher Mock ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchHit), args.Error(1)
}

// --- Aggregator Mock ---

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Aggregate(ctx context.Context, queries []model.SearchQuery, _ ...source.AggregateOption) (*source.Result, error) {
	args := m.Called(ctx, queries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.Result), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Result), args.Error(1)
}

// --- Enricher Mock ---

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Enrich(ctx context.Context, docs []model.SourceDocument, topN int) []model.SourceDocument {
	args := m.Called(ctx, docs, topN)
	if fn, ok := args.Get(0).(func(context.Context, []model.SourceDocument, int) []model.SourceDocument); ok {
		return fn(ctx, docs, topN)
	}
	return args.Get(0).([]model.SourceDocument)
}

// --- PhaseRunner Mock ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, identity model.CompanyIdentity, phase model.Phase, maxRetries int) (*model.PhaseResult, error) {
	args := m.Called(ctx, identity, phase, maxRetries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PhaseResult), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, rec *model.MergedRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) Latest(ctx context.Context, companyID string) (*model.MergedRecord, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MergedRecord), args.Error(1)
}

func (m *mockStore) History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error) {
	args := m.Called(ctx, companyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MergedRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockStore) Close() error { return m.Called().Error(0) }

// --- Exporter Mock ---

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Export(ctx context.Context, rec *model.MergedRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// roundScorer scores a profile by the "round" value the test extractor
// puts in it, looking the percentage up in pcts.
type roundScorer struct {
	pcts []float64
	s    *scorer.Scorer
}

func (r roundScorer) Score(p model.Profile, _ model.Schema) model.CompletenessScore {
	round, ok := p["round"].(int)
	if !ok {
		return model.CompletenessScore{Status: model.StatusPoor}
	}
	pct := r.pcts[round]
	return model.CompletenessScore{Percentage: pct, Status: r.s.StatusFor(pct)}
}

func hits(prefix string, n int) []model.SearchHit {
	out := make([]model.SearchHit, n)
	for i := range out {
		out[i] = model.SearchHit{
			URL:     fmt.Sprintf("https://%s.example.com/doc-%d", prefix, i),
			Title:   fmt.Sprintf("%s %d", prefix, i),
			Snippet: "snippet",
			Rank:    i + 1,
		}
	}
	return out
}

func docs(n int) []model.SourceDocument {
	out := make([]model.SourceDocument, n)
	for i := range out {
		out[i] = model.SourceDocument{URL: fmt.Sprintf("https://example.com/%d", i), Rank: i + 1}
	}
	return out
}

func roundIs(round int) any {
	return mock.MatchedBy(func(req extract.Request) bool { return req.Round == round })
}
