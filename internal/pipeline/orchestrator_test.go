package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-profiler/internal/extract"
	"github.com/sells-group/company-profiler/internal/metrics"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/query"
	"github.com/sells-group/company-profiler/internal/scorer"
	"github.com/sells-group/company-profiler/internal/source"
)

var acme = model.CompanyIdentity{Name: "Acme Corp", Location: "Delaware"}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func tenRequired() model.Schema {
	var s model.Schema
	for i := 1; i <= 10; i++ {
		s.Fields = append(s.Fields, model.FieldSpec{Key: fmt.Sprintf("field_%02d", i), Required: true})
	}
	return s
}

func strictScorer(t *testing.T) *scorer.Scorer {
	t.Helper()
	cfg := scorer.DefaultConfig()
	cfg.Thresholds = []scorer.Threshold{
		{Status: model.StatusExcellent, Min: 99},
		{Status: model.StatusGood, Min: 98},
		{Status: model.StatusPartial, Min: 40},
		{Status: model.StatusPoor, Min: 0},
	}
	s, err := scorer.New(cfg)
	require.NoError(t, err)
	return s
}

// stubAggregator returns the same three documents for every round.
func stubAggregator() *mockAggregator {
	agg := new(mockAggregator)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(&source.Result{Documents: docs(3), Hits: 3}, nil)
	return agg
}

func roundResult(round int) *extract.Result {
	return &extract.Result{
		Profile: model.Profile{"round": round},
		Usage:   model.TokenUsage{InputTokens: 100, OutputTokens: 10, CostUSD: 0.01},
	}
}

func newTestOrchestrator(agg Aggregator, ex extract.Extractor, sc Scorer, schema model.Schema, opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewOrchestrator(query.NewBuilder(), agg, ex, sc, schema, DefaultConfig(), opts...)
}

func TestRun_MissingNameIssuesNoSearch(t *testing.T) {
	agg := new(mockAggregator)
	ex := new(mockExtractor)
	o := newTestOrchestrator(agg, ex, roundScorer{}, tenRequired())

	res, err := o.Run(context.Background(), model.CompanyIdentity{Name: "  ", Location: "Delaware"}, model.PhaseRegulatory, 2)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, model.IsInputValidation(err))
	agg.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
	ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRun_RejectsUnknownPhaseAndNegativeRetries(t *testing.T) {
	o := newTestOrchestrator(new(mockAggregator), new(mockExtractor), roundScorer{}, tenRequired())

	_, err := o.Run(context.Background(), acme, model.Phase("social"), 2)
	assert.True(t, model.IsInputValidation(err))

	_, err = o.Run(context.Background(), acme, model.PhaseGeneral, -1)
	assert.True(t, model.IsInputValidation(err))
}

func TestRun_AcmeStopsAtRoundZero(t *testing.T) {
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, `"Acme Corp"`) && strings.Contains(q, `"Delaware"`)
	})).Return(hits("acme", 3), nil)
	agg := source.NewAggregator(searcher, source.Config{})

	schema := tenRequired()
	profile := model.Profile{}
	for _, f := range schema.Fields[:8] {
		profile[f.Key] = "value of " + f.Key
	}
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, mock.MatchedBy(func(req extract.Request) bool {
		return req.Round == 0 && len(req.Documents) == 3 && req.Identity.Name == "Acme Corp"
	})).Return(&extract.Result{Profile: profile}, nil).Once()

	sc, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)

	m := metrics.New()
	o := newTestOrchestrator(agg, ex, sc, schema, WithMetrics(m))
	res, err := o.Run(context.Background(), acme, model.PhaseRegulatory, 2)
	require.NoError(t, err)

	assert.Equal(t, "acme_corp", res.CompanyID)
	assert.InDelta(t, 80.0, res.Score.Percentage, 1e-9)
	assert.Equal(t, model.StatusGood, res.Score.Status)
	assert.False(t, res.BelowThreshold())
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Equal(t, 0, res.BestRound)
	require.Len(t, res.Attempts, 1)
	assert.Len(t, res.Attempts[0].Documents, 3)
	assert.Len(t, res.Score.MissingFields, 2)
	ex.AssertExpectations(t)
	searcher.AssertNumberOfCalls(t, "Search", 1)
}

func TestRun_ReturnsBestRoundNotLast(t *testing.T) {
	ex := new(mockExtractor)
	for r := 0; r <= 2; r++ {
		ex.On("Extract", mock.Anything, roundIs(r)).Return(roundResult(r), nil).Once()
	}
	sc := roundScorer{pcts: []float64{60, 97, 80}, s: strictScorer(t)}

	o := newTestOrchestrator(stubAggregator(), ex, sc, tenRequired())
	res, err := o.Run(context.Background(), acme, model.PhaseGeneral, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, res.AttemptsUsed)
	assert.Equal(t, 1, res.BestRound)
	assert.Equal(t, 1, res.Profile["round"])
	assert.Equal(t, 97.0, res.Score.Percentage)
	assert.True(t, res.BelowThreshold())
	assert.Equal(t, 300, res.Usage.InputTokens)
	ex.AssertExpectations(t)
}

func TestRun_TieGoesToLaterRound(t *testing.T) {
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, roundIs(0)).Return(roundResult(0), nil).Once()
	ex.On("Extract", mock.Anything, roundIs(1)).Return(roundResult(1), nil).Once()
	sc := roundScorer{pcts: []float64{70, 70}, s: strictScorer(t)}

	res, err := newTestOrchestrator(stubAggregator(), ex, sc, tenRequired()).
		Run(context.Background(), acme, model.PhaseGeneral, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BestRound)
}

func TestRun_NeverExceedsMaxRetries(t *testing.T) {
	agg := stubAggregator()
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, mock.Anything).Return(&extract.Result{Profile: model.Profile{}}, nil)
	sc, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)

	res, err := newTestOrchestrator(agg, ex, sc, tenRequired()).
		Run(context.Background(), acme, model.PhaseWebsite, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, res.AttemptsUsed)
	assert.Equal(t, model.StatusPoor, res.Score.Status)
	ex.AssertNumberOfCalls(t, "Extract", 4)
	agg.AssertNumberOfCalls(t, "Aggregate", 4)
}

func TestRun_ExtractionFailureContinues(t *testing.T) {
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, roundIs(0)).
		Return(nil, &model.ExtractionError{Phase: model.PhaseGeneral, Round: 0, Reason: "timeout"}).Once()
	ex.On("Extract", mock.Anything, roundIs(1)).Return(roundResult(1), nil).Once()
	sc := roundScorer{pcts: []float64{0, 98.5}, s: strictScorer(t)}

	m := metrics.New()
	res, err := newTestOrchestrator(stubAggregator(), ex, sc, tenRequired(), WithMetrics(m)).
		Run(context.Background(), acme, model.PhaseGeneral, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.AttemptsUsed)
	assert.Equal(t, 1, res.BestRound)
	assert.Equal(t, model.StatusGood, res.Score.Status)
	assert.True(t, res.Attempts[0].Failed())
	assert.True(t, model.IsExtraction(res.Attempts[0].Err))
	assert.Equal(t, 0.0, res.Attempts[0].Score.Percentage)
}

func TestRun_FinalRoundFailureIsSurfaced(t *testing.T) {
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, roundIs(0)).Return(roundResult(0), nil).Once()
	ex.On("Extract", mock.Anything, roundIs(1)).Return(nil, errors.New("unexpected EOF")).Once()
	sc := roundScorer{pcts: []float64{60}, s: strictScorer(t)}

	res, err := newTestOrchestrator(stubAggregator(), ex, sc, tenRequired()).
		Run(context.Background(), acme, model.PhaseRegulatory, 1)
	require.Error(t, err)

	var ee *model.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Round)
	assert.Equal(t, "collaborator error", ee.Reason)

	require.NotNil(t, res)
	assert.Equal(t, 0, res.BestRound)
	assert.Equal(t, 0, res.Profile["round"])
	assert.Equal(t, 60.0, res.Score.Percentage)
	assert.Equal(t, 2, res.AttemptsUsed)
}

func TestRun_SearchExhaustedEveryRound(t *testing.T) {
	agg := new(mockAggregator)
	agg.On("Aggregate", mock.Anything, mock.Anything).
		Return(nil, &model.SearchExhaustedError{Queries: 1, Failures: []error{errors.New("503")}})
	ex := new(mockExtractor)
	sc, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)

	res, err := newTestOrchestrator(agg, ex, sc, tenRequired()).
		Run(context.Background(), acme, model.PhaseRegulatory, 2)
	require.Error(t, err)
	assert.True(t, model.IsSearchExhausted(err))

	require.NotNil(t, res)
	assert.False(t, res.HasProfile())
	assert.Equal(t, -1, res.BestRound)
	assert.Equal(t, model.StatusPoor, res.Score.Status)
	assert.Equal(t, 3, res.AttemptsUsed)
	ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRun_EmptyAggregationFailsRound(t *testing.T) {
	agg := new(mockAggregator)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(&source.Result{}, nil).Once()
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(&source.Result{Documents: docs(2)}, nil).Once()
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, roundIs(1)).Return(roundResult(1), nil).Once()
	sc := roundScorer{pcts: []float64{0, 99}, s: strictScorer(t)}

	res, err := newTestOrchestrator(agg, ex, sc, tenRequired()).
		Run(context.Background(), acme, model.PhaseGeneral, 2)
	require.NoError(t, err)
	assert.True(t, model.IsSearchExhausted(res.Attempts[0].Err))
	assert.Equal(t, model.StatusExcellent, res.Score.Status)
}

func TestRun_CancelledMidCallDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, roundIs(0)).
		Run(func(args mock.Arguments) {
			// The call itself is detached from cancellation.
			assert.NoError(t, args.Get(0).(context.Context).Err())
			cancel()
		}).
		Return(roundResult(0), nil).Once()
	agg := stubAggregator()
	sc := roundScorer{pcts: []float64{100}, s: strictScorer(t)}

	res, err := newTestOrchestrator(agg, ex, sc, tenRequired()).Run(ctx, acme, model.PhaseGeneral, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	agg.AssertNumberOfCalls(t, "Aggregate", 1)
	ex.AssertNumberOfCalls(t, "Extract", 1)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg := new(mockAggregator)

	_, err := newTestOrchestrator(agg, new(mockExtractor), roundScorer{}, tenRequired()).
		Run(ctx, acme, model.PhaseGeneral, 2)
	assert.ErrorIs(t, err, context.Canceled)
	agg.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
}

func TestRun_EscalatesContext(t *testing.T) {
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).Return(hits("wide", 30), nil)
	agg := source.NewAggregator(searcher, source.Config{})

	var seen []int
	ex := new(mockExtractor)
	ex.On("Extract", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seen = append(seen, len(args.Get(1).(extract.Request).Documents))
		}).
		Return(&extract.Result{Profile: model.Profile{}}, nil)

	enricher := new(mockEnricher)
	enricher.On("Enrich", mock.Anything, mock.Anything, 3).
		Return(func(_ context.Context, d []model.SourceDocument, _ int) []model.SourceDocument {
			out := append([]model.SourceDocument(nil), d...)
			out[0].Content = "page text"
			return out
		})
	sc, err := scorer.New(scorer.DefaultConfig())
	require.NoError(t, err)

	res, err := newTestOrchestrator(agg, ex, sc, tenRequired(), WithEnricher(enricher)).
		Run(context.Background(), acme, model.PhaseRegulatory, 2)
	require.NoError(t, err)

	// MaxSources 10, SourcesStep 5.
	assert.Equal(t, []int{10, 15, 20}, seen)
	assert.Empty(t, res.Attempts[0].Documents[0].Content)
	assert.Equal(t, "page text", res.Attempts[1].Documents[0].Content)
	enricher.AssertNumberOfCalls(t, "Enrich", 2)

	// Each round's queries differ from the previous round's.
	for i := 1; i < len(res.Attempts); i++ {
		assert.NotEqual(t, res.Attempts[i-1].Queries[0].Text, res.Attempts[i].Queries[0].Text)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "searching", stateSearching.String())
	assert.Equal(t, "done", stateDone.String())
	assert.Equal(t, "unknown", state(99).String())
}

func TestRunID_Context(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	assert.Equal(t, "run-1", RunID(ctx))
	assert.Empty(t, RunID(context.Background()))
}
