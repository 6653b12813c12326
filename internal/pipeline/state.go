package pipeline

// state is a step of the per-phase loop:
// Searching -> Extracting -> Scoring -> Done | Escalate -> Searching.
// A failed search or extraction jumps straight to the Done/Escalate
// decision with a zero score.
type state int

const (
	stateSearching state = iota
	stateExtracting
	stateScoring
	stateEscalate
	stateDone
)

func (s state) String() string {
	switch s {
	case stateSearching:
		return "searching"
	case stateExtracting:
		return "extracting"
	case stateScoring:
		return "scoring"
	case stateEscalate:
		return "escalate"
	case stateDone:
		return "done"
	}
	return "unknown"
}
