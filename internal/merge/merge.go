package merge

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/model"
)

// PresenceFunc decides whether a value is real. It is normally the
// scorer's IsPresent so merge and scoring agree on placeholders.
type PresenceFunc func(v any) bool

// Merger combines phase profiles.
type Merger struct {
	precedence Precedence
	schema     model.Schema
	present    PresenceFunc
	now        func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithClock overrides the merge-time clock.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// New builds a Merger. A nil present func treats every non-nil value as
// present.
func New(precedence Precedence, schema model.Schema, present PresenceFunc, opts ...Option) (*Merger, error) {
	if err := precedence.Validate(); err != nil {
		return nil, err
	}
	if present == nil {
		present = func(v any) bool { return v != nil }
	}
	m := &Merger{
		precedence: precedence,
		schema:     schema,
		present:    present,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Merge resolves every field present in any input. For each field the
// highest-precedence phase with a present value wins; two inputs from the
// same phase are resolved in favour of the later ExtractedAt. Argument
// order never affects the result. The record timestamp is merge time,
// bumped past the newest input when the clock lags.
func (m *Merger) Merge(identity model.CompanyIdentity, inputs []model.PhaseProfile) (*model.MergedRecord, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, eris.New("merge: no phase profiles to merge")
	}

	ordered := append([]model.PhaseProfile(nil), inputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Phase != ordered[j].Phase {
			return ordered[i].Phase < ordered[j].Phase
		}
		return ordered[i].ExtractedAt.After(ordered[j].ExtractedAt)
	})

	keys := make(map[string]struct{})
	var newest time.Time
	scores := make(map[model.Phase]model.CompletenessScore, len(ordered))
	for _, in := range ordered {
		for k := range in.Profile {
			keys[k] = struct{}{}
		}
		if in.ExtractedAt.After(newest) {
			newest = in.ExtractedAt
		}
		if _, ok := scores[in.Phase]; !ok {
			scores[in.Phase] = in.Score
		}
	}

	fields := make(map[string]model.ProvenancedValue, len(keys))
	for k := range keys {
		spec, _ := m.schema.Field(k)
		order := m.precedence.Order(k, spec.Group)

		bestRank := -1
		var winner model.ProvenancedValue
		for _, in := range ordered {
			v, ok := in.Profile.Get(k)
			if !ok || !m.present(v) {
				continue
			}
			r := rank(order, in.Phase)
			// ordered is sorted by phase then newest first, so the first
			// hit per rank is the one to keep.
			if bestRank == -1 || r < bestRank {
				bestRank = r
				winner = model.ProvenancedValue{Value: v, SourcePhase: in.Phase}
			}
		}
		if bestRank >= 0 {
			fields[k] = winner
		}
	}

	rec := &model.MergedRecord{
		CompanyID:           identity.CompanyID(),
		Identity:            identity,
		Fields:              fields,
		PhaseScores:         scores,
		ExtractionTimestamp: m.timestamp(newest),
	}

	zap.L().Debug("merge: record built",
		zap.String("company_id", rec.CompanyID),
		zap.Int("inputs", len(inputs)),
		zap.Int("fields", len(fields)),
	)
	return rec, nil
}

// timestamp returns merge time truncated to microseconds, strictly after
// newest.
func (m *Merger) timestamp(newest time.Time) time.Time {
	ts := m.now().UTC().Truncate(time.Microsecond)
	if !ts.After(newest) {
		ts = newest.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return ts
}
