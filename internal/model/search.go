package model

import "strings"

// Filter names, listed in the order they are dropped when a query broadens.
const (
	FilterLocation     = "location"
	FilterDateWindow   = "date_window"
	FilterDocumentType = "document_type"
	FilterSite         = "site"
	FilterTopic        = "topic"
)

// QueryFilter is one narrowing term of a search query.
type QueryFilter struct {
	Name string `json:"name"`
	Term string `json:"term"`
}

// SearchQuery is a rendered query for one round of one phase.
type SearchQuery struct {
	Text          string        `json:"text"`
	Phase         Phase         `json:"phase"`
	SourceType    SourceType    `json:"source_type"`
	Round         int           `json:"round"`
	Filters       []QueryFilter `json:"filters,omitempty"`
	TargetDomains []string      `json:"target_domains,omitempty"`
}

// FilterCount is the number of narrowing filters still applied.
func (q SearchQuery) FilterCount() int { return len(q.Filters) }

// HasFilter reports whether a filter with the given name is applied.
func (q SearchQuery) HasFilter(name string) bool {
	for _, f := range q.Filters {
		if f.Name == name {
			return true
		}
	}
	return false
}

// SearchHit is a raw result from the search collaborator. Rank is the
// 1-based position within its own query's results.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// SourceDocument is a deduplicated search result offered to extraction.
type SourceDocument struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
	Rank    int    `json:"rank"`
	Boosted bool   `json:"boosted,omitempty"`

	// OriginQuery points at the query that produced this document.
	OriginQuery *SearchQuery `json:"-"`
}

// Host returns the lowercase host of the document URL without "www.".
func (d SourceDocument) Host() string {
	s := strings.ToLower(d.URL)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}
