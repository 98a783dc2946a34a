package scenario

// Outcome is the tri-state result of evaluating a predicate. Indeterminate
// means "insufficient evidence" and is distinct from a measured false: a
// metric window with no samples, a graph that was never built, or a failed
// provider call all land here instead of pretending to be a clean no-match.
type Outcome int8

const (
	False Outcome = iota
	True
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case False:
		return "false"
	case True:
		return "true"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}
