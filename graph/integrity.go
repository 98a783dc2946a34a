package graph

import "fmt"

// IntegrityError reports provider data too malformed to resolve: a cyclic or
// over-deep target chain. It is a scan-level warning, not a scan failure;
// only orphan scenarios on the affected subgraph are suppressed.
type IntegrityError struct {
	ResourceID string
	Detail     string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("dependency graph integrity: %s: %s", e.ResourceID, e.Detail)
}
