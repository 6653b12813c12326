package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/company-profiler/internal/model"
)

// Scorer evaluates profiles against a schema. It holds no mutable state and
// is safe for concurrent use.
type Scorer struct {
	weights    Weights
	thresholds []Threshold
	denylist   map[string]struct{}
}

// New validates cfg and builds a Scorer.
func New(cfg Config) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	deny := make(map[string]struct{}, len(cfg.Placeholders))
	for _, p := range cfg.Placeholders {
		deny[normalize(p)] = struct{}{}
	}
	return &Scorer{
		weights:    cfg.Weights,
		thresholds: append([]Threshold(nil), cfg.Thresholds...),
		denylist:   deny,
	}, nil
}

// Score computes the completeness of p over schema. An empty schema scores
// 0% and Poor.
func (s *Scorer) Score(p model.Profile, schema model.Schema) model.CompletenessScore {
	var earned, total float64
	present := make([]string, 0, len(schema.Fields))
	missing := make([]string, 0, len(schema.Fields))

	for _, f := range schema.Fields {
		w := s.weights.Optional
		if f.Required {
			w = s.weights.Required
		}
		total += w

		v, _ := p.Get(f.Key)
		if s.IsPresent(v) {
			earned += w
			present = append(present, f.Key)
		} else {
			missing = append(missing, f.Key)
		}
	}

	raw := 0.0
	if total > 0 {
		raw = earned / total * 100
	}
	// Bucket on the exact value; only the reported figure is rounded.
	return model.CompletenessScore{
		Percentage:    math.Round(raw*100) / 100,
		Status:        s.StatusFor(raw),
		PresentFields: present,
		MissingFields: missing,
	}
}

// StatusFor buckets a percentage using the threshold table. Percentages
// below every threshold are Poor.
func (s *Scorer) StatusFor(pct float64) model.Status {
	for _, th := range s.thresholds {
		if pct >= th.Min {
			return th.Status
		}
	}
	return model.StatusPoor
}

// IsPresent reports whether v counts as a real value. Empty strings,
// placeholder strings, and empty collections are absent; numbers and
// booleans are always present.
func (s *Scorer) IsPresent(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		n := normalize(t)
		if n == "" {
			return false
		}
		_, denied := s.denylist[n]
		return !denied
	case []any:
		for _, e := range t {
			if s.IsPresent(e) {
				return true
			}
		}
		return false
	case []string:
		for _, e := range t {
			if s.IsPresent(e) {
				return true
			}
		}
		return false
	case map[string]any:
		for _, e := range t {
			if s.IsPresent(e) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// normalize lowercases, collapses whitespace, and trims trailing periods.
func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".")
}
