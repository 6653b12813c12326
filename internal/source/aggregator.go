package source

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
)

// Config controls fan-out and capping.
type Config struct {
	MaxSources    int
	Concurrency   int
	RatePerSecond float64
	Burst         int
	// Retry, when set, retries transient query failures. Each attempt
	// waits on the rate limiter again.
	Retry *resilience.Policy
}

// QueryFailure records a query that errored.
type QueryFailure struct {
	Query model.SearchQuery
	Err   error
}

// Result is the outcome of one aggregation.
type Result struct {
	Documents  []model.SourceDocument
	Failures   []QueryFailure
	Hits       int
	Duplicates int
}

// Aggregator fans queries out to a Searcher. It is safe for concurrent use;
// the rate limiter is shared by every caller.
type Aggregator struct {
	searcher Searcher
	limiter  *rate.Limiter
	cfg      Config
}

// NewAggregator creates an Aggregator. A non-positive rate disables limiting.
func NewAggregator(searcher Searcher, cfg Config) *Aggregator {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Aggregator{
		searcher: searcher,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		cfg:      cfg,
	}
}

// AggregateOption adjusts a single aggregation.
type AggregateOption func(*aggregateOpts)

type aggregateOpts struct {
	cap   int
	prior []model.SourceDocument
}

// WithCap overrides the configured maximum document count.
func WithCap(n int) AggregateOption {
	return func(o *aggregateOpts) { o.cap = n }
}

// WithPrior seeds the aggregation with documents from earlier rounds. They
// take part in dedup and ranking like fresh hits.
func WithPrior(docs []model.SourceDocument) AggregateOption {
	return func(o *aggregateOpts) { o.prior = docs }
}

// Aggregate issues every query concurrently and merges the hits. Individual
// query failures are recorded and skipped; a SearchExhaustedError is
// returned only when every query fails. Results that arrive after ctx is
// cancelled are discarded.
func (a *Aggregator) Aggregate(ctx context.Context, queries []model.SearchQuery, opts ...AggregateOption) (*Result, error) {
	o := aggregateOpts{cap: a.cfg.MaxSources}
	for _, opt := range opts {
		opt(&o)
	}
	if len(queries) == 0 {
		return nil, &model.SearchExhaustedError{}
	}

	type outcome struct {
		hits []model.SearchHit
		err  error
	}
	outcomes := make([]outcome, len(queries))

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Concurrency)
	for i := range queries {
		g.Go(func() error {
			hits, err := a.search(ctx, queries[i].Text)
			outcomes[i] = outcome{hits: hits, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	var failures []error
	var candidates []candidate
	for _, d := range o.prior {
		candidates = append(candidates, candidate{doc: d, query: -1})
	}
	for i, out := range outcomes {
		if out.err != nil {
			res.Failures = append(res.Failures, QueryFailure{Query: queries[i], Err: out.err})
			failures = append(failures, out.err)
			zap.L().Warn("source: query failed",
				zap.String("phase", string(queries[i].Phase)),
				zap.Int("round", queries[i].Round),
				zap.String("query", queries[i].Text),
				zap.Error(out.err),
			)
			continue
		}
		q := &queries[i]
		for _, h := range out.hits {
			res.Hits++
			candidates = append(candidates, candidate{
				doc: model.SourceDocument{
					URL:         h.URL,
					Title:       h.Title,
					Snippet:     h.Snippet,
					Rank:        h.Rank,
					Boosted:     matchesDomain(h.URL, q.TargetDomains),
					OriginQuery: q,
				},
				query: i,
			})
		}
	}

	if len(failures) == len(queries) {
		return nil, &model.SearchExhaustedError{Queries: len(queries), Failures: failures}
	}

	docs, dups := dedupe(candidates)
	res.Duplicates = dups
	if o.cap > 0 && len(docs) > o.cap {
		docs = docs[:o.cap]
	}
	res.Documents = docs
	return res, nil
}

func (a *Aggregator) search(ctx context.Context, text string) ([]model.SearchHit, error) {
	once := func(ctx context.Context) ([]model.SearchHit, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return a.searcher.Search(ctx, text)
	}
	if a.cfg.Retry == nil {
		return once(ctx)
	}
	return resilience.DoVal(ctx, *a.cfg.Retry, once)
}

type candidate struct {
	doc   model.SourceDocument
	query int
}

// dedupe keeps the best-ranked occurrence of each URL and orders the
// survivors: boosted first, then rank, then query order, then URL.
func dedupe(cands []candidate) ([]model.SourceDocument, int) {
	best := make(map[string]int, len(cands))
	var kept []candidate
	dups := 0
	for _, c := range cands {
		key := normalizeURL(c.doc.URL)
		if idx, ok := best[key]; ok {
			dups++
			if c.doc.Rank < kept[idx].doc.Rank {
				if c.doc.Content == "" {
					c.doc.Content = kept[idx].doc.Content
				}
				kept[idx] = c
			}
			continue
		}
		best[key] = len(kept)
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.doc.Boosted != b.doc.Boosted {
			return a.doc.Boosted
		}
		if a.doc.Rank != b.doc.Rank {
			return a.doc.Rank < b.doc.Rank
		}
		if a.query != b.query {
			return a.query < b.query
		}
		return a.doc.URL < b.doc.URL
	})

	docs := make([]model.SourceDocument, len(kept))
	for i, c := range kept {
		docs[i] = c.doc
	}
	return docs, dups
}

// normalizeURL produces the dedup key: lowercase host without "www.",
// no fragment, no trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func matchesDomain(rawURL string, domains []string) bool {
	if len(domains) == 0 {
		return false
	}
	host := model.SourceDocument{URL: rawURL}.Host()
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
