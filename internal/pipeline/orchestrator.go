// Package pipeline runs the per-phase extraction loop and joins phases into
// a persisted merged record.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/extract"
	"github.com/sells-group/company-profiler/internal/metrics"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/source"
)

// Config tunes the retry loop.
type Config struct {
	MaxRetries      int            `yaml:"max_retries" mapstructure:"max_retries"`
	MaxSources      int            `yaml:"max_sources" mapstructure:"max_sources"`
	SourcesStep     int            `yaml:"sources_step" mapstructure:"sources_step"`
	EnrichFromRound int            `yaml:"enrich_from_round" mapstructure:"enrich_from_round"`
	EnrichTopN      int            `yaml:"enrich_top_n" mapstructure:"enrich_top_n"`
	SearchTimeout   time.Duration  `yaml:"search_timeout" mapstructure:"search_timeout"`
	StopStatuses    []model.Status `yaml:"stop_statuses" mapstructure:"stop_statuses"`
}

// DefaultConfig returns three rounds, ten sources growing by five per round
// and page enrichment of the top three documents from round 1 on.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		MaxSources:      10,
		SourcesStep:     5,
		EnrichFromRound: 1,
		EnrichTopN:      3,
		SearchTimeout:   45 * time.Second,
		StopStatuses:    []model.Status{model.StatusExcellent, model.StatusGood},
	}
}

// Orchestrator runs the search, extract and score loop for one phase.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	builder    QueryBuilder
	aggregator Aggregator
	enricher   Enricher
	extractor  extract.Extractor
	scorer     Scorer
	schema     model.Schema
	cfg        Config
	metrics    *metrics.Recorder
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnricher enables page enrichment on escalated rounds.
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithMetrics records loop outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator. Zero config values fall back to
// DefaultConfig.
func NewOrchestrator(
	builder QueryBuilder,
	aggregator Aggregator,
	extractor extract.Extractor,
	scorer Scorer,
	schema model.Schema,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	d := DefaultConfig()
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = d.MaxSources
	}
	if cfg.SourcesStep < 0 {
		cfg.SourcesStep = 0
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = d.SearchTimeout
	}
	if len(cfg.StopStatuses) == 0 {
		cfg.StopStatuses = d.StopStatuses
	}
	o := &Orchestrator{
		builder:    builder,
		aggregator: aggregator,
		extractor:  extractor,
		scorer:     scorer,
		schema:     schema,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxRetries is the configured default retry count.
func (o *Orchestrator) MaxRetries() int { return o.cfg.MaxRetries }

// Run executes rounds 0..maxRetries for phase and returns the best-scoring
// profile seen. It stops early once a round reaches a stop status.
//
// A failed round scores zero and the loop moves on. When the final round
// fails, its error is returned together with the result, which still holds
// the best profile of the earlier rounds. Cancellation is checked between
// every step; a cancelled run returns ctx.Err() and no result.
func (o *Orchestrator) Run(ctx context.Context, identity model.CompanyIdentity, phase model.Phase, maxRetries int) (*model.PhaseResult, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if !phase.Valid() {
		return nil, &model.InputValidationError{Field: "phase", Reason: "unknown phase " + string(phase)}
	}
	if maxRetries < 0 {
		return nil, &model.InputValidationError{Field: "max_retries", Reason: "must be >= 0"}
	}

	runID := RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &phaseRun{
		o:          o,
		identity:   identity,
		phase:      phase,
		maxRetries: maxRetries,
		started:    o.now(),
		bestRound:  -1,
		log: zap.L().With(
			zap.String("run_id", runID),
			zap.String("company_id", identity.CompanyID()),
			zap.String("phase", string(phase)),
		),
	}
	r.log.Info("pipeline: phase starting", zap.Int("max_retries", maxRetries))

	res, err := r.loop(ctx)
	if res != nil {
		o.metrics.PhaseFinished(string(phase), string(res.Score.Status), res.AttemptsUsed, res.Score.Percentage)
		o.metrics.Tokens(string(phase), res.Usage.InputTokens, res.Usage.OutputTokens)
	}
	return res, err
}

// phaseRun is the mutable state of one Run call.
type phaseRun struct {
	o          *Orchestrator
	identity   model.CompanyIdentity
	phase      model.Phase
	maxRetries int
	started    time.Time
	log        *zap.Logger

	state    state
	round    int
	queries  []model.SearchQuery
	docs     []model.SourceDocument
	prior    []model.SourceDocument
	attempt  model.ExtractionAttempt
	roundAt  time.Time
	attempts []model.ExtractionAttempt

	best      model.Profile
	bestScore model.CompletenessScore
	bestRound int
	bestAt    time.Time
	usage     model.TokenUsage
	finalErr  error
}

func (r *phaseRun) loop(ctx context.Context) (*model.PhaseResult, error) {
	r.state = stateSearching
	r.beginRound()
	for r.state != stateDone {
		if err := ctx.Err(); err != nil {
			r.log.Info("pipeline: phase cancelled", zap.Int("round", r.round), zap.Stringer("state", r.state))
			return nil, err
		}
		var err error
		switch r.state {
		case stateSearching:
			err = r.search(ctx)
		case stateExtracting:
			r.extract(ctx)
		case stateScoring:
			r.score()
		case stateEscalate:
			r.round++
			r.beginRound()
			r.state = stateSearching
		}
		if err != nil {
			return nil, err
		}
	}
	return r.result(), r.finalErr
}

func (r *phaseRun) beginRound() {
	r.roundAt = r.o.now()
	r.queries = nil
	r.docs = nil
	r.attempt = model.ExtractionAttempt{AttemptNumber: r.round + 1, Round: r.round}
}

// search builds the round's queries and aggregates sources. Only a query
// builder failure aborts the loop; search failures fail the round.
func (r *phaseRun) search(ctx context.Context) error {
	queries, err := r.o.builder.Queries(r.identity, r.phase, r.round)
	if err != nil {
		return eris.Wrapf(err, "pipeline: build queries for round %d", r.round)
	}
	r.queries = queries
	r.attempt.Queries = queries

	limit := r.o.cfg.MaxSources + r.round*r.o.cfg.SourcesStep
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.cfg.SearchTimeout)
	defer cancel()

	res, err := r.o.aggregator.Aggregate(callCtx, queries, source.WithCap(limit), source.WithPrior(r.prior))
	if ctx.Err() != nil {
		return nil
	}
	if err == nil && len(res.Documents) == 0 {
		err = &model.SearchExhaustedError{Queries: len(queries)}
	}
	if err != nil {
		if model.IsSearchExhausted(err) {
			r.o.metrics.SearchExhausted(string(r.phase))
		}
		r.fail(err)
		return nil
	}

	docs := res.Documents
	if r.o.enricher != nil && r.o.cfg.EnrichTopN > 0 && r.round >= r.o.cfg.EnrichFromRound {
		docs = r.o.enricher.Enrich(callCtx, docs, r.o.cfg.EnrichTopN)
	}
	r.docs = docs
	r.prior = docs
	r.attempt.Documents = append([]model.SourceDocument(nil), docs...)

	r.log.Debug("pipeline: sources aggregated",
		zap.Int("round", r.round),
		zap.Int("queries", len(queries)),
		zap.Int("failed_queries", len(res.Failures)),
		zap.Int("hits", res.Hits),
		zap.Int("documents", len(docs)),
		zap.Int("cap", limit),
	)
	r.state = stateExtracting
	return nil
}

// extract calls the extraction collaborator. The call is detached from ctx
// cancellation; the loop discards its result if ctx ends meanwhile.
func (r *phaseRun) extract(ctx context.Context) {
	res, err := r.o.extractor.Extract(context.WithoutCancel(ctx), extract.Request{
		Identity:  r.identity,
		Phase:     r.phase,
		Round:     r.round,
		Documents: r.docs,
		Schema:    r.o.schema,
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		reason := "collaborator error"
		var ee *model.ExtractionError
		if errors.As(err, &ee) {
			reason = ee.Reason
		} else {
			err = &model.ExtractionError{Phase: r.phase, Round: r.round, Reason: reason, Err: err}
		}
		r.o.metrics.ExtractionFailed(string(r.phase), reason)
		r.fail(err)
		return
	}
	r.attempt.Profile = res.Profile
	if r.attempt.Profile == nil {
		r.attempt.Profile = model.Profile{}
	}
	r.attempt.Usage = res.Usage
	r.usage.Add(res.Usage)
	r.state = stateScoring
}

// fail marks the round as failed with a zero score and decides what comes
// next.
func (r *phaseRun) fail(err error) {
	r.attempt.Err = err
	r.attempt.Score = r.o.scorer.Score(nil, r.o.schema)
	r.log.Warn("pipeline: round failed", zap.Int("round", r.round), zap.Error(err))
	r.finish()
}

func (r *phaseRun) score() {
	sc := r.o.scorer.Score(r.attempt.Profile, r.o.schema)
	r.attempt.Score = sc

	if sc.Percentage >= r.bestScore.Percentage || r.best == nil {
		r.best = r.attempt.Profile
		r.bestScore = sc
		r.bestRound = r.round
		r.bestAt = r.o.now()
	}
	r.log.Info("pipeline: round scored",
		zap.Int("round", r.round),
		zap.Float64("percentage", sc.Percentage),
		zap.String("status", string(sc.Status)),
		zap.Int("missing", len(sc.MissingFields)),
		zap.Int("best_round", r.bestRound),
	)
	r.finish()
}

// finish closes the current round and picks Done or Escalate.
func (r *phaseRun) finish() {
	r.attempt.Elapsed = r.o.now().Sub(r.roundAt)
	r.attempts = append(r.attempts, r.attempt)

	switch {
	case !r.attempt.Failed() && r.stops(r.attempt.Score.Status):
		r.state = stateDone
	case r.round >= r.maxRetries:
		if r.attempt.Failed() {
			r.finalErr = r.attempt.Err
		}
		r.state = stateDone
	default:
		r.state = stateEscalate
	}
}

func (r *phaseRun) stops(s model.Status) bool {
	for _, st := range r.o.cfg.StopStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (r *phaseRun) result() *model.PhaseResult {
	res := &model.PhaseResult{
		CompanyID:    r.identity.CompanyID(),
		Phase:        r.phase,
		Profile:      r.best,
		Score:        r.bestScore,
		BestRound:    r.bestRound,
		AttemptsUsed: len(r.attempts),
		Attempts:     r.attempts,
		Usage:        r.usage,
		ExtractedAt:  r.bestAt,
		Duration:     r.o.now().Sub(r.started),
	}
	if r.best == nil {
		res.Score = r.o.scorer.Score(nil, r.o.schema)
	}

	fields := []zap.Field{
		zap.Int("attempts", res.AttemptsUsed),
		zap.Int("best_round", res.BestRound),
		zap.Float64("percentage", res.Score.Percentage),
		zap.String("status", string(res.Score.Status)),
		zap.Float64("cost_usd", res.Usage.CostUSD),
		zap.Duration("duration", res.Duration),
	}
	if r.finalErr != nil {
		r.log.Error("pipeline: phase finished with failed final round", append(fields, zap.Error(r.finalErr))...)
	} else {
		r.log.Info("pipeline: phase complete", fields...)
	}
	return res
}
