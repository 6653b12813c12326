// Package query builds search queries that broaden deterministically with
// each retry round.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// dropOrder is the order in which filters are removed as rounds advance.
var dropOrder = []string{
	model.FilterLocation,
	model.FilterDateWindow,
	model.FilterDocumentType,
	model.FilterSite,
	model.FilterTopic,
}

// alternatePhrasings are appended once every filter has been dropped so
// later rounds still differ from the one before.
var alternatePhrasings = []string{
	"company",
	"corporation overview",
	"business profile",
	"headquarters",
}

const (
	profileTerms    = `("company profile" OR "about us" OR headquarters OR revenue OR employees)`
	leadershipTerms = `(leadership OR "management team" OR executives OR "board of directors" OR founders)`
)

// Builder renders queries. It is pure apart from the injected clock.
type Builder struct {
	now   func() time.Time
	rules []JurisdictionRule
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used for the recency window.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithJurisdictions adds rules that take precedence over the built-in
// jurisdiction table.
func WithJurisdictions(rules []JurisdictionRule) Option {
	return func(b *Builder) { b.rules = append([]JurisdictionRule(nil), rules...) }
}

// NewBuilder creates a Builder using time.Now unless overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build returns the primary query for a phase and round. Round 0 carries
// every filter the phase defines; each later round drops the next filter
// in drop order, so the filter count never grows between rounds.
func (b *Builder) Build(identity model.CompanyIdentity, phase model.Phase, round int) (model.SearchQuery, error) {
	if err := identity.Validate(); err != nil {
		return model.SearchQuery{}, err
	}
	if !phase.Valid() {
		return model.SearchQuery{}, &model.InputValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", phase)}
	}
	if round < 0 {
		return model.SearchQuery{}, eris.Errorf("query: negative round %d", round)
	}

	anchor := anchorTerms(identity, true)
	return b.render(identity, phase, round, anchor), nil
}

// Queries returns every query to issue for a round: the primary query and,
// for the regulatory phase of a ticker-bearing company, a ticker-anchored
// variant with the same filters.
func (b *Builder) Queries(identity model.CompanyIdentity, phase model.Phase, round int) ([]model.SearchQuery, error) {
	primary, err := b.Build(identity, phase, round)
	if err != nil {
		return nil, err
	}
	out := []model.SearchQuery{primary}
	if phase == model.PhaseRegulatory && identity.Ticker != "" {
		variant := b.render(identity, phase, round, []string{strconv.Quote(identity.Ticker), "stock"})
		if variant.Text != primary.Text {
			out = append(out, variant)
		}
	}
	return out, nil
}

func (b *Builder) render(identity model.CompanyIdentity, phase model.Phase, round int, anchor []string) model.SearchQuery {
	filters, domains := b.template(identity, phase)

	dropped := 0
	for _, name := range dropOrder {
		if dropped >= round {
			break
		}
		if idx := indexOf(filters, name); idx >= 0 {
			filters = append(filters[:idx:idx], filters[idx+1:]...)
			dropped++
		}
	}

	terms := append([]string(nil), anchor...)
	for _, f := range filters {
		terms = append(terms, f.Term)
	}
	if extra := round - dropped; extra > 0 {
		// Nothing left to drop; loosen the exact-name match and vary phrasing.
		terms[0] = strings.Trim(terms[0], `"`)
		terms = append(terms, alternatePhrasings[(extra-1)%len(alternatePhrasings)])
	}

	return model.SearchQuery{
		Text:          strings.Join(terms, " "),
		Phase:         phase,
		SourceType:    phase.SourceType(),
		Round:         round,
		Filters:       filters,
		TargetDomains: domains,
	}
}

// template returns the full round-0 filter set for a phase, in drop order,
// and the domains whose results get a relevance boost.
func (b *Builder) template(identity model.CompanyIdentity, phase model.Phase) ([]model.QueryFilter, []string) {
	var filters []model.QueryFilter
	if identity.Location != "" {
		filters = append(filters, model.QueryFilter{Name: model.FilterLocation, Term: strconv.Quote(identity.Location)})
	}

	switch phase {
	case model.PhaseRegulatory:
		j := resolve(identity.Location, b.rules)
		filters = append(filters,
			model.QueryFilter{Name: model.FilterDateWindow, Term: b.recencyWindow()},
			model.QueryFilter{Name: model.FilterDocumentType, Term: documentTypeTerm(j)},
		)
		return filters, append([]string(nil), j.Sites...)

	case model.PhaseWebsite:
		domain := identity.Domain()
		if domain == "" {
			// No known site: degrade to a leadership-focused open-web search.
			filters = append(filters, model.QueryFilter{Name: model.FilterTopic, Term: leadershipTerms})
			return filters, nil
		}
		filters = append(filters,
			model.QueryFilter{Name: model.FilterSite, Term: "site:" + domain},
			model.QueryFilter{Name: model.FilterTopic, Term: leadershipTerms},
		)
		return filters, []string{domain}

	default:
		filters = append(filters, model.QueryFilter{Name: model.FilterTopic, Term: profileTerms})
		var domains []string
		if d := identity.Domain(); d != "" {
			domains = []string{d}
		}
		return filters, domains
	}
}

// recencyWindow covers the current and previous calendar year.
func (b *Builder) recencyWindow() string {
	y := b.now().Year()
	return fmt.Sprintf("(%d OR %d)", y, y-1)
}

func documentTypeTerm(j Jurisdiction) string {
	var parts []string
	if len(j.Sites) == 1 {
		parts = append(parts, "site:"+j.Sites[0])
	} else if len(j.Sites) > 1 {
		sites := make([]string, len(j.Sites))
		for i, s := range j.Sites {
			sites[i] = "site:" + s
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}
	parts = append(parts, "("+strings.Join(j.DocTerms, " OR ")+")")
	return strings.Join(parts, " ")
}

func anchorTerms(identity model.CompanyIdentity, quoted bool) []string {
	name := identity.Name
	if quoted {
		name = strconv.Quote(name)
	}
	terms := []string{name}
	if identity.Ticker != "" {
		terms = append(terms, identity.Ticker)
	}
	return terms
}

func indexOf(filters []model.QueryFilter, name string) int {
	for i, f := range filters {
		if f.Name == name {
			return i
		}
	}
	return -1
}
