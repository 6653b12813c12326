package model

import (
	"fmt"
	"strings"
)

// Phase is a profiling strategy. Each phase runs its own search and
// extraction loop and contributes one profile to the merge.
type Phase string

const (
	PhaseRegulatory Phase = "regulatory" // Filings and registries
	PhaseGeneral    Phase = "general"    // Private-company open web
	PhaseWebsite    Phase = "website"    // Company site leadership pages
)

// AllPhases lists the known phases in their canonical order.
var AllPhases = []Phase{PhaseRegulatory, PhaseGeneral, PhaseWebsite}

// SourceType classifies where a query is aimed.
type SourceType string

const (
	SourceRegulatory SourceType = "regulatory"
	SourceGeneralWeb SourceType = "general-web"
)

// SourceType returns the source type a phase searches.
func (p Phase) SourceType() SourceType {
	if p == PhaseRegulatory {
		return SourceRegulatory
	}
	return SourceGeneralWeb
}

// Valid reports whether p is one of AllPhases.
func (p Phase) Valid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePhase parses a case-insensitive phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &InputValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", s)}
	}
	return p, nil
}

// ParsePhases parses a list of phase names, rejecting duplicates.
func ParsePhases(names []string) ([]Phase, error) {
	seen := make(map[Phase]bool, len(names))
	out := make([]Phase, 0, len(names))
	for _, n := range names {
		p, err := ParsePhase(n)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, &InputValidationError{Field: "phase", Reason: fmt.Sprintf("duplicate phase %q", n)}
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}
