package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/config"
	"github.com/sells-group/company-profiler/internal/export"
	"github.com/sells-group/company-profiler/internal/extract"
	"github.com/sells-group/company-profiler/internal/merge"
	"github.com/sells-group/company-profiler/internal/metrics"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/pipeline"
	"github.com/sells-group/company-profiler/internal/policy"
	"github.com/sells-group/company-profiler/internal/query"
	"github.com/sells-group/company-profiler/internal/resilience"
	"github.com/sells-group/company-profiler/internal/scorer"
	"github.com/sells-group/company-profiler/internal/source"
	"github.com/sells-group/company-profiler/internal/store"
	anthropicpkg "github.com/sells-group/company-profiler/pkg/anthropic"
	"github.com/sells-group/company-profiler/pkg/jina"
)

// pipelineEnv holds the initialized clients and components needed by the
// run/merge/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Coordinator  *pipeline.Coordinator
	Metrics      *metrics.Recorder
	Policy       *policy.Policy
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store and wraps it with the
// retry policy for transient database errors.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		MaxConns:    c.Store.MaxConns,
		MinConns:    c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return store.NewRetrying(st, retryPolicy(c, "store")), nil
}

func retryPolicy(c *config.Config, name string) resilience.Policy {
	return resilience.NewPolicy(name, c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
}

// orchestratorConfig converts the config section. Unknown stop statuses are
// rejected rather than ignored.
func orchestratorConfig(c *config.Config) (pipeline.Config, error) {
	oc := pipeline.Config{
		MaxRetries:      c.Orchestrator.MaxRetries,
		MaxSources:      c.Orchestrator.MaxSources,
		SourcesStep:     c.Orchestrator.SourcesStep,
		EnrichFromRound: c.Orchestrator.EnrichFromRound,
		EnrichTopN:      c.Orchestrator.EnrichTopN,
		SearchTimeout:   c.Search.Timeout(),
	}
	for _, s := range c.Orchestrator.StopStatuses {
		st, ok := model.ParseStatus(s)
		if !ok {
			return pipeline.Config{}, eris.Errorf("orchestrator: unknown stop status %q", s)
		}
		oc.StopStatuses = append(oc.StopStatuses, st)
	}
	return oc, nil
}

// initPipeline validates config for mode, loads the policy, and builds the
// orchestrator and coordinator. withExport forces the S3 exporter on.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, withExport bool) (*pipelineEnv, error) {
	c := *cfg
	if withExport {
		c.Export.Enabled = true
	}
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	pol, err := policy.LoadOrDefault(c.Policy.Path)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(pol.Scoring)
	if err != nil {
		return nil, err
	}
	mg, err := merge.New(pol.Precedence, pol.Schema, sc.IsPresent)
	if err != nil {
		return nil, err
	}
	oc, err := orchestratorConfig(&c)
	if err != nil {
		return nil, err
	}
	phases, err := model.ParsePhases(c.Orchestrator.Phases)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: phases")
	}

	jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)

	aiOpts := []anthropicpkg.Option{anthropicpkg.WithMaxRetries(c.Anthropic.SDKMaxRetries)}
	if c.Anthropic.BaseURL != "" {
		aiOpts = append(aiOpts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
	}
	aiClient := anthropicpkg.NewClient(c.Anthropic.Key, aiOpts...)

	rec := metrics.New()

	searchRetry := retryPolicy(&c, "search")
	aggregator := source.NewAggregator(source.NewJinaSearcher(jinaClient, c.Jina.NoCache), source.Config{
		MaxSources:    c.Orchestrator.MaxSources,
		Concurrency:   c.Search.Concurrency,
		RatePerSecond: c.Search.RatePerSecond,
		Burst:         c.Search.Burst,
		Retry:         &searchRetry,
	})
	enricher := source.NewEnricher(pageReader(&c, jinaClient), c.Jina.ReadConcurrency, c.Jina.ReadMaxChars)
	extractor := extract.New(aiClient, extract.Config{
		Model:           c.Anthropic.Model,
		MaxTokens:       c.Anthropic.MaxTokens,
		Timeout:         c.Anthropic.Timeout(),
		MaxContextChars: c.Anthropic.MaxContextChars,
	}, resilience.NewBreaker("anthropic", c.Breaker.Threshold, c.Breaker.Cooldown()))

	orch := pipeline.NewOrchestrator(
		query.NewBuilder(query.WithJurisdictions(pol.Jurisdictions)),
		aggregator,
		extractor,
		sc,
		pol.Schema,
		oc,
		pipeline.WithEnricher(enricher),
		pipeline.WithMetrics(rec),
	)

	st, err := initStore(ctx, &c)
	if err != nil {
		return nil, err
	}

	coordOpts := []pipeline.CoordinatorOption{
		pipeline.WithPhases(phases...),
		pipeline.WithCoordinatorMetrics(rec),
	}
	if c.Export.Enabled {
		exp, err := export.NewFromConfig(ctx, exportConfig(&c))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		coordOpts = append(coordOpts, pipeline.WithExporter(exp))
		zap.L().Info("s3 export enabled", zap.String("bucket", c.Export.Bucket))
	}

	zap.L().Info("pipeline initialized",
		zap.String("store", c.Store.Driver),
		zap.String("model", c.Anthropic.Model),
		zap.Int("schema_fields", len(pol.Schema.Fields)),
		zap.Int("max_retries", oc.MaxRetries),
		zap.Duration("search_timeout", oc.SearchTimeout),
		zap.Duration("extract_timeout", c.Anthropic.Timeout()),
	)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		Coordinator:  pipeline.NewCoordinator(orch, mg, st, oc.MaxRetries, coordOpts...),
		Metrics:      rec,
		Policy:       pol,
	}, nil
}

// pageReader builds the enrichment reader: a direct fetch first when
// enabled, then the Jina reader.
func pageReader(c *config.Config, jc jina.Client) source.Reader {
	jr := source.NewJinaReader(jc, retryPolicy(c, "jina-read"))
	if !c.Jina.LocalFirst {
		return jr
	}
	return source.NewChainReader(source.NewLocalReader(nil), jr)
}

func exportConfig(c *config.Config) export.Config {
	return export.Config{
		Enabled:         c.Export.Enabled,
		Bucket:          c.Export.Bucket,
		Prefix:          c.Export.Prefix,
		Region:          c.Export.Region,
		Endpoint:        c.Export.Endpoint,
		AccessKeyID:     c.Export.AccessKeyID,
		SecretAccessKey: c.Export.SecretAccessKey,
	}
}
