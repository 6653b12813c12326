package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-profiler/internal/metrics"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/store"
)

// Outcome is the result of a full multi-phase run.
type Outcome struct {
	RunID       string                             `json:"run_id"`
	Record      *model.MergedRecord                `json:"record,omitempty"`
	Phases      map[model.Phase]*model.PhaseResult `json:"phases"`
	PhaseErrors map[model.Phase]string             `json:"phase_errors,omitempty"`
	ExportKey   string                             `json:"export_key,omitempty"`
	Duration    time.Duration                      `json:"duration"`

	errs map[model.Phase]error
}

// PhaseErr returns the error a phase ended with, if any.
func (o *Outcome) PhaseErr(p model.Phase) error {
	return o.errs[p]
}

// Coordinator fans phases out, waits for all of them, merges the profiles
// and persists the merged record.
type Coordinator struct {
	runner     PhaseRunner
	merger     Merger
	store      store.Store
	exporter   Exporter
	phases     []model.Phase
	maxRetries int
	metrics    *metrics.Recorder
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithExporter uploads each persisted record.
func WithExporter(e Exporter) CoordinatorOption {
	return func(c *Coordinator) { c.exporter = e }
}

// WithPhases sets the phases to run. The default is model.AllPhases.
func WithPhases(phases ...model.Phase) CoordinatorOption {
	return func(c *Coordinator) { c.phases = phases }
}

// WithCoordinatorMetrics records persistence outcomes.
func WithCoordinatorMetrics(m *metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(runner PhaseRunner, merger Merger, st store.Store, maxRetries int, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		runner:     runner,
		merger:     merger,
		store:      st,
		phases:     model.AllPhases,
		maxRetries: maxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunPhase runs a single phase with the configured retry count.
func (c *Coordinator) RunPhase(ctx context.Context, identity model.CompanyIdentity, phase model.Phase) (*model.PhaseResult, error) {
	return c.runner.Run(ctx, identity, phase, c.maxRetries)
}

// Run executes every configured phase concurrently, merges the profiles they
// produced and upserts the record. Phases that fail keep running to
// completion independently; the merge waits for all of them.
//
// A PersistenceError from the store is returned unchanged. An export failure
// is returned after the record has been persisted.
func (c *Coordinator) Run(ctx context.Context, identity model.CompanyIdentity) (*Outcome, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if len(c.phases) == 0 {
		return nil, &model.InputValidationError{Field: "phases", Reason: "must not be empty"}
	}

	runID := RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}
	log := zap.L().With(zap.String("run_id", runID), zap.String("company_id", identity.CompanyID()))
	start := time.Now()

	results := make([]*model.PhaseResult, len(c.phases))
	errs := make([]error, len(c.phases))

	var g errgroup.Group
	for i, phase := range c.phases {
		g.Go(func() error {
			results[i], errs[i] = c.runner.Run(ctx, identity, phase, c.maxRetries)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Info("pipeline: run cancelled")
		return nil, err
	}

	out := &Outcome{
		RunID:  runID,
		Phases: make(map[model.Phase]*model.PhaseResult, len(c.phases)),
		errs:   make(map[model.Phase]error),
	}
	var inputs []model.PhaseProfile
	var failures []error
	for i, phase := range c.phases {
		if results[i] != nil {
			out.Phases[phase] = results[i]
		}
		if errs[i] != nil {
			out.errs[phase] = errs[i]
			if out.PhaseErrors == nil {
				out.PhaseErrors = make(map[model.Phase]string)
			}
			out.PhaseErrors[phase] = errs[i].Error()
			failures = append(failures, errs[i])
			log.Warn("pipeline: phase ended with error", zap.String("phase", string(phase)), zap.Error(errs[i]))
		}
		if results[i].HasProfile() {
			inputs = append(inputs, results[i].PhaseProfile())
		}
	}
	if len(inputs) == 0 {
		out.Duration = time.Since(start)
		if len(failures) == 0 {
			return out, eris.New("pipeline: no phase produced a profile")
		}
		return out, eris.Wrap(errors.Join(failures...), "pipeline: no phase produced a profile")
	}

	rec, err := c.merger.Merge(identity, inputs)
	if err != nil {
		return out, eris.Wrap(err, "pipeline: merge")
	}
	out.Record = rec

	err = c.store.Upsert(ctx, rec)
	c.metrics.Persisted(err)
	if err != nil {
		log.Error("pipeline: persist merged record failed", zap.Error(err))
		out.Duration = time.Since(start)
		return out, err
	}

	if c.exporter != nil {
		key, err := c.exporter.Export(ctx, rec)
		if err != nil {
			out.Duration = time.Since(start)
			return out, eris.Wrap(err, "pipeline: export merged record")
		}
		out.ExportKey = key
	}

	out.Duration = time.Since(start)
	log.Info("pipeline: run complete",
		zap.Int("phases", len(c.phases)),
		zap.Int("merged_phases", len(inputs)),
		zap.Int("fields", len(rec.Fields)),
		zap.Time("extraction_timestamp", rec.ExtractionTimestamp),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

// Merge combines already computed phase results and persists the record.
// It is the merge entry point for drivers that sequence phases themselves.
func (c *Coordinator) Merge(ctx context.Context, identity model.CompanyIdentity, results []*model.PhaseResult) (*model.MergedRecord, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	var inputs []model.PhaseProfile
	for _, r := range results {
		if r.HasProfile() {
			inputs = append(inputs, r.PhaseProfile())
		}
	}
	rec, err := c.merger.Merge(identity, inputs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: merge")
	}
	err = c.store.Upsert(ctx, rec)
	c.metrics.Persisted(err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
