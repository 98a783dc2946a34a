package scenario

import (
	_ "embed"
)

//go:embed scenarios.yaml
var defaultScenarios []byte

// DefaultSet compiles the built-in scenario library. The embedded document
// is maintained alongside the cost models, so rejections here are bugs, not
// operator input; callers still get them via Set.Rejected.
func DefaultSet(models ModelChecker) (*Set, error) {
	return LoadSet(defaultScenarios, models)
}
