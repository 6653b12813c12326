package model

import (
	"sort"
	"time"
)

// Field groups, used to select precedence rules for a field.
const (
	GroupCorporate  = "corporate"
	GroupFinancial  = "financial"
	GroupLeadership = "leadership"
)

// FieldSpec describes one profile field.
type FieldSpec struct {
	Key         string `json:"key" yaml:"key"`
	Required    bool   `json:"required" yaml:"required"`
	Group       string `json:"group" yaml:"group"`
	Description string `json:"description" yaml:"description"`
}

// Schema is the ordered set of fields a profile is scored against.
type Schema struct {
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// Field looks up a field spec by key.
func (s Schema) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Keys returns field keys in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

// RequiredCount returns the number of required fields.
func (s Schema) RequiredCount() int {
	n := 0
	for _, f := range s.Fields {
		if f.Required {
			n++
		}
	}
	return n
}

// Profile maps schema keys to extracted values. A missing key and a nil
// value both mean the field is absent. Values are strings, numbers, bools,
// lists, or objects as decoded from JSON.
type Profile map[string]any

// Get returns the value stored under key and whether it is non-nil.
func (p Profile) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok && v != nil
}

// Keys returns the profile's keys in sorted order.
func (p Profile) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PhaseProfile is one phase's best profile, handed to the merger.
type PhaseProfile struct {
	Phase       Phase             `json:"phase"`
	Profile     Profile           `json:"profile"`
	Score       CompletenessScore `json:"score"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// TokenUsage records LLM token consumption for an attempt.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}
