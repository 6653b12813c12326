// Package merge consolidates per-phase profiles into one provenance-tagged
// record.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// Precedence orders phases per field. Lookup goes Fields[key], then
// Groups[group of key], then Default. Phases missing from the chosen list
// rank after every listed phase, alphabetically.
type Precedence struct {
	Default []model.Phase            `yaml:"default"`
	Groups  map[string][]model.Phase `yaml:"groups"`
	Fields  map[string][]model.Phase `yaml:"fields"`
}

// DefaultPrecedence returns the default table. Filings win for financial
// and corporate facts, the company's own site wins for leadership, and
// the fallback is regulatory > website > general.
func DefaultPrecedence() Precedence {
	return Precedence{
		Default: []model.Phase{model.PhaseRegulatory, model.PhaseWebsite, model.PhaseGeneral},
		Groups: map[string][]model.Phase{
			model.GroupFinancial:  {model.PhaseRegulatory, model.PhaseGeneral, model.PhaseWebsite},
			model.GroupCorporate:  {model.PhaseRegulatory, model.PhaseGeneral, model.PhaseWebsite},
			model.GroupLeadership: {model.PhaseWebsite, model.PhaseRegulatory, model.PhaseGeneral},
		},
		Fields: map[string][]model.Phase{},
	}
}

// Validate rejects unknown or repeated phases in any list.
func (p Precedence) Validate() error {
	var errs []string
	check := func(name string, list []model.Phase) {
		seen := make(map[model.Phase]bool, len(list))
		for _, ph := range list {
			if !ph.Valid() {
				errs = append(errs, fmt.Sprintf("%s: unknown phase %q", name, ph))
			}
			if seen[ph] {
				errs = append(errs, fmt.Sprintf("%s: duplicate phase %q", name, ph))
			}
			seen[ph] = true
		}
	}
	check("default", p.Default)
	for _, g := range sortedKeys(p.Groups) {
		check("group "+g, p.Groups[g])
	}
	for _, f := range sortedKeys(p.Fields) {
		check("field "+f, p.Fields[f])
	}
	if len(errs) > 0 {
		return eris.Errorf("merge: precedence validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Order returns the phase ranking for a field.
func (p Precedence) Order(key, group string) []model.Phase {
	if list, ok := p.Fields[key]; ok && len(list) > 0 {
		return list
	}
	if list, ok := p.Groups[group]; ok && len(list) > 0 {
		return list
	}
	return p.Default
}

// rank gives the position of phase in order; unlisted phases rank after
// all listed ones.
func rank(order []model.Phase, phase model.Phase) int {
	for i, ph := range order {
		if ph == phase {
			return i
		}
	}
	return len(order)
}

func sortedKeys(m map[string][]model.Phase) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
