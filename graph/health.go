package graph

// HealthState is a backend's reported health.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// BackendHealth is one backend's state inside a health snapshot.
type BackendHealth struct {
	BackendID string
	State     HealthState
}

// HealthSnapshot maps backend service ids to the reported health of their
// backends, captured once during enumeration.
type HealthSnapshot map[string][]BackendHealth

// HealthVerdict is the outcome of an all-backends-unhealthy check.
// UnknownSeen distinguishes "every backend reported down" from "the health
// check API itself failed for some backend", which scenarios grade at lower
// confidence.
type HealthVerdict struct {
	AllUnhealthy bool
	UnknownSeen  bool
}

// AllBackendsUnhealthy reports whether every configured backend of the
// service is unhealthy. True requires at least one configured backend and a
// reported state for each of them; unknown counts as unhealthy but is
// surfaced via UnknownSeen. Missing or partial snapshots yield false; no
// evidence is not evidence of an outage.
func (g *Graph) AllBackendsUnhealthy(backendServiceID string, snapshot HealthSnapshot) HealthVerdict {
	count := g.BackendCount(backendServiceID)
	if count == 0 {
		return HealthVerdict{}
	}

	states := snapshot[backendServiceID]
	if len(states) < count {
		return HealthVerdict{}
	}

	verdict := HealthVerdict{AllUnhealthy: true}
	for _, bh := range states {
		switch bh.State {
		case HealthUnhealthy:
		case HealthUnknown:
			verdict.UnknownSeen = true
		default:
			return HealthVerdict{}
		}
	}
	return verdict
}
