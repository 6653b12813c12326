// Package source runs search queries and turns their hits into a ranked,
// deduplicated, capped document set.
package source

import (
	"context"
	"errors"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
	"github.com/sells-group/company-profiler/pkg/jina"
)

// Searcher issues one query. Implementations do not retry.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchHit, error)
}

// JinaSearcher adapts a jina.Client to Searcher.
type JinaSearcher struct {
	client  jina.Client
	noCache bool
}

// NewJinaSearcher wraps client. noCache bypasses the provider cache so
// broadened rounds see fresh results.
func NewJinaSearcher(client jina.Client, noCache bool) *JinaSearcher {
	return &JinaSearcher{client: client, noCache: noCache}
}

// Search runs query and converts results to hits ranked by position.
func (s *JinaSearcher) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	var opts []jina.SearchOption
	if s.noCache {
		opts = append(opts, jina.WithNoCache())
	}
	resp, err := s.client.Search(ctx, query, opts...)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
			return nil, resilience.NewTransientError(err, se.StatusCode)
		}
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		hits = append(hits, model.SearchHit{
			URL:     r.URL,
			Title:   CleanText(r.Title, 0),
			Snippet: CleanText(snippet, maxSnippetChars),
			Rank:    len(hits) + 1,
		})
	}
	return hits, nil
}
