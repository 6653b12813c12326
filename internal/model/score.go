package model

import "time"

// Status buckets a completeness percentage.
type Status string

const (
	StatusExcellent Status = "Excellent"
	StatusGood      Status = "Good"
	StatusPartial   Status = "Partial"
	StatusPoor      Status = "Poor"
)

// ParseStatus parses a status name. Matching is exact.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusExcellent, StatusGood, StatusPartial, StatusPoor:
		return Status(s), true
	}
	return "", false
}

// CompletenessScore is the weighted completeness of a profile.
type CompletenessScore struct {
	Percentage    float64  `json:"percentage"`
	Status        Status   `json:"status"`
	PresentFields []string `json:"present_fields"`
	MissingFields []string `json:"missing_fields"`
}

// ExtractionAttempt records one round of one phase. Profile is nil when the
// round failed; Err then holds the cause and Score is zero.
type ExtractionAttempt struct {
	AttemptNumber int               `json:"attempt_number"`
	Round         int               `json:"round"`
	Queries       []SearchQuery     `json:"queries"`
	Documents     []SourceDocument  `json:"documents"`
	Profile       Profile           `json:"profile,omitempty"`
	Score         CompletenessScore `json:"score"`
	Usage         TokenUsage        `json:"usage"`
	Elapsed       time.Duration     `json:"elapsed"`
	Err           error             `json:"-"`
}

// Failed reports whether the attempt produced no profile.
func (a ExtractionAttempt) Failed() bool { return a.Profile == nil }

// PhaseResult is the outcome of one phase's retry loop.
type PhaseResult struct {
	CompanyID    string              `json:"company_id"`
	Phase        Phase               `json:"phase"`
	Profile      Profile             `json:"profile,omitempty"`
	Score        CompletenessScore   `json:"score"`
	BestRound    int                 `json:"best_round"`
	AttemptsUsed int                 `json:"attempts_used"`
	Attempts     []ExtractionAttempt `json:"attempts"`
	Usage        TokenUsage          `json:"usage"`
	ExtractedAt  time.Time           `json:"extracted_at"`
	Duration     time.Duration       `json:"duration"`
}

// HasProfile reports whether any round produced a profile.
func (r *PhaseResult) HasProfile() bool { return r != nil && r.Profile != nil }

// PhaseProfile converts the result into merge input.
func (r *PhaseResult) PhaseProfile() PhaseProfile {
	return PhaseProfile{
		Phase:       r.Phase,
		Profile:     r.Profile,
		Score:       r.Score,
		ExtractedAt: r.ExtractedAt,
	}
}

// BelowThreshold reports whether the best profile is only Partial or Poor.
// It is a normal outcome, not an error.
func (r *PhaseResult) BelowThreshold() bool {
	return r.Score.Status != StatusExcellent && r.Score.Status != StatusGood
}
