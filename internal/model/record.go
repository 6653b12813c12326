package model

import (
	"sort"
	"time"
)

// ProvenancedValue is a merged field value tagged with the phase it came
// from.
type ProvenancedValue struct {
	Value       any   `json:"value"`
	SourcePhase Phase `json:"source_phase"`
}

// MergedRecord is the consolidated company profile that gets persisted.
// It is immutable once created; a re-merge produces a new record with a
// newer ExtractionTimestamp.
type MergedRecord struct {
	CompanyID           string                      `json:"company_id"`
	Identity            CompanyIdentity             `json:"identity"`
	Fields              map[string]ProvenancedValue `json:"fields"`
	PhaseScores         map[Phase]CompletenessScore `json:"phase_scores,omitempty"`
	ExtractionTimestamp time.Time                   `json:"extraction_timestamp"`
}

// Profile flattens the record into plain values.
func (r *MergedRecord) Profile() Profile {
	p := make(Profile, len(r.Fields))
	for k, v := range r.Fields {
		p[k] = v.Value
	}
	return p
}

// SourcePhase returns the phase a field was taken from.
func (r *MergedRecord) SourcePhase(key string) (Phase, bool) {
	v, ok := r.Fields[key]
	return v.SourcePhase, ok
}

// FieldKeys returns the merged field keys in sorted order.
func (r *MergedRecord) FieldKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
