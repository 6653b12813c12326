package source

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
	"github.com/sells-group/company-profiler/pkg/jina"
)

// Reader fetches the full text of a page.
type Reader interface {
	Read(ctx context.Context, url string) (string, error)
}

// JinaReader adapts jina.Client to Reader with a retry policy.
type JinaReader struct {
	client jina.Client
	retry  resilience.Policy
}

// NewJinaReader wraps client.
func NewJinaReader(client jina.Client, retry resilience.Policy) *JinaReader {
	if retry.Name == "" {
		retry.Name = "jina.read"
	}
	return &JinaReader{client: client, retry: retry}
}

// Name identifies the reader in logs.
func (r *JinaReader) Name() string { return "jina" }

// Read fetches url, retrying transient HTTP failures.
func (r *JinaReader) Read(ctx context.Context, url string) (string, error) {
	return resilience.DoVal(ctx, r.retry, func(ctx context.Context) (string, error) {
		resp, err := r.client.Read(ctx, url)
		if err != nil {
			var se *jina.StatusError
			if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
				return "", resilience.NewTransientError(err, se.StatusCode)
			}
			return "", err
		}
		return resp.Data.Content, nil
	})
}

// Enricher fills Content for the top documents of a set.
type Enricher struct {
	reader      Reader
	concurrency int
	maxChars    int
}

// NewEnricher creates an Enricher. maxChars bounds stored content.
func NewEnricher(reader Reader, concurrency, maxChars int) *Enricher {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Enricher{reader: reader, concurrency: concurrency, maxChars: maxChars}
}

// Enrich returns a copy of docs with Content set on up to topN documents
// that lack it. Read failures are logged and leave the document as is.
func (e *Enricher) Enrich(ctx context.Context, docs []model.SourceDocument, topN int) []model.SourceDocument {
	out := append([]model.SourceDocument(nil), docs...)
	if e == nil || e.reader == nil || topN <= 0 {
		return out
	}

	var failed atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	n := 0
	for i := range out {
		if n >= topN {
			break
		}
		if out[i].Content != "" {
			continue
		}
		n++
		g.Go(func() error {
			text, err := e.reader.Read(ctx, out[i].URL)
			if err != nil {
				failed.Add(1)
				zap.L().Debug("source: enrich read failed", zap.String("url", out[i].URL), zap.Error(err))
				return nil
			}
			out[i].Content = CleanText(text, e.maxChars)
			return nil
		})
	}
	_ = g.Wait()

	if f := failed.Load(); f > 0 {
		zap.L().Info("source: enrichment incomplete", zap.Int("attempted", n), zap.Int32("failed", f))
	}
	return out
}
