// Package graph resolves references between enumerated resources so orphan
// and duplication scenarios can ask "does this chain still lead anywhere".
// A graph is built once per scan, before evaluation starts, and is read-only
// from then on; evaluation workers share it without locking.
package graph

import (
	"sort"

	"github.com/velhola/gleaner/types"
)

// maxChainDepth bounds reference following. Real chains are at most
// rule → proxy → url map → backend service; anything deeper is corrupt.
const maxChainDepth = 8

// ChainKinds are the kinds that participate in target chains. A scan
// evaluating any graph scenario must enumerate all of them, or nodes a
// chain passes through would be missing and resolvable chains would
// read as dangling.
var ChainKinds = []types.Kind{
	types.KindForwardingRule,
	types.KindTargetProxy,
	types.KindURLMap,
	types.KindBackendService,
}

// chainResolution caches the outcome of following one node's target chain.
type chainResolution struct {
	exists   bool
	terminal string
	broken   string
	cyclic   bool
}

// Graph indexes one scan's resources by id with forward target references,
// a reverse index of incoming references, and configured backend lists.
type Graph struct {
	nodes     map[string]types.Resource
	backends  map[string][]string
	incoming  map[string][]string
	resolved  map[string]chainResolution
	integrity []IntegrityError
	edgeCount int
}

// Build constructs the graph from all enumerated resources. Construction
// never fails: malformed chains are recorded as integrity errors and their
// sources resolve as broken, while the rest of the graph stays usable.
func Build(resources []types.Resource) *Graph {
	g := &Graph{
		nodes:    types.BuildResourceMap(resources),
		backends: make(map[string][]string),
		incoming: make(map[string][]string),
		resolved: make(map[string]chainResolution),
	}

	for _, r := range resources {
		if target, ok := r.StrAttr(types.AttrTarget); ok && target != "" {
			g.incoming[target] = append(g.incoming[target], r.ID)
			g.edgeCount++
		}
		if backends, ok := r.StrSliceAttr(types.AttrBackends); ok {
			g.backends[r.ID] = backends
			g.edgeCount += len(backends)
		}
	}

	for _, r := range resources {
		if _, ok := r.StrAttr(types.AttrTarget); ok {
			g.resolved[r.ID] = g.followChain(r.ID)
		}
	}

	return g
}

// followChain walks target references from start until it reaches a node
// without a target (the terminal), a missing node, or a repeat visit.
func (g *Graph) followChain(start string) chainResolution {
	visited := map[string]bool{start: true}
	current := start

	for depth := 0; depth < maxChainDepth; depth++ {
		node := g.nodes[current]
		target, ok := node.StrAttr(types.AttrTarget)
		if !ok || target == "" {
			return chainResolution{exists: true, terminal: current}
		}

		if visited[target] {
			g.integrity = append(g.integrity, IntegrityError{
				ResourceID: start,
				Detail:     "target chain revisits " + target,
			})
			return chainResolution{cyclic: true, broken: target}
		}

		next, ok := g.nodes[target]
		if !ok {
			return chainResolution{broken: target}
		}

		visited[target] = true
		current = next.ID
	}

	g.integrity = append(g.integrity, IntegrityError{
		ResourceID: start,
		Detail:     "target chain exceeds max depth",
	})
	return chainResolution{cyclic: true, broken: current}
}

// Node returns the resource for an id.
func (g *Graph) Node(id string) (types.Resource, bool) {
	r, ok := g.nodes[id]
	return r, ok
}

// HasTarget reports whether the resource carries a target reference at all.
func (g *Graph) HasTarget(r types.Resource) bool {
	target, ok := r.StrAttr(types.AttrTarget)
	return ok && target != ""
}

// TargetExists follows the resource's target chain and reports whether every
// hop resolves to an enumerated resource. A resource without a target
// reference trivially resolves; combine with HasTarget when the scenario
// requires a reference to be present. Cyclic chains resolve as false and are
// listed in IntegrityErrors.
func (g *Graph) TargetExists(r types.Resource) bool {
	if res, ok := g.resolved[r.ID]; ok {
		return res.exists
	}
	// Not part of this scan's node set: nothing to dangle from.
	if !g.HasTarget(r) {
		return true
	}
	target, _ := r.StrAttr(types.AttrTarget)
	if res, ok := g.resolved[target]; ok {
		_, present := g.nodes[target]
		return present && res.exists
	}
	_, present := g.nodes[target]
	return present
}

// Terminal returns the id at the end of the resource's target chain, if the
// whole chain resolves.
func (g *Graph) Terminal(r types.Resource) (string, bool) {
	res, ok := g.resolved[r.ID]
	if !ok || !res.exists {
		return "", false
	}
	return res.terminal, true
}

// BackendCount returns the number of backends configured on a backend
// service. Zero signals the empty-backend scenario; zero is also returned
// for unknown ids, which only ever reach here through a broken chain that
// the orphan scenario already covers.
func (g *Graph) BackendCount(backendServiceID string) int {
	return len(g.backends[backendServiceID])
}

// DuplicateTargets maps each backend service reached by more than one
// forwarding rule to the sorted list of rule ids sharing it.
func (g *Graph) DuplicateTargets() map[string][]string {
	byTerminal := make(map[string][]string)
	for _, r := range g.nodes {
		if r.Kind != types.KindForwardingRule {
			continue
		}
		res, ok := g.resolved[r.ID]
		if !ok || !res.exists {
			continue
		}
		byTerminal[res.terminal] = append(byTerminal[res.terminal], r.ID)
	}

	duplicates := make(map[string][]string)
	for terminal, rules := range byTerminal {
		if len(rules) < 2 {
			continue
		}
		sort.Strings(rules)
		duplicates[terminal] = rules
	}
	return duplicates
}

// IncomingRefs returns the ids referencing this resource directly, sorted.
func (g *Graph) IncomingRefs(id string) []string {
	refs := g.incoming[id]
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	copy(out, refs)
	sort.Strings(out)
	return out
}

// IntegrityErrors lists malformed chains found during construction. The scan
// surfaces them as warnings; the affected sources evaluate as broken chains
// rather than aborting the scan.
func (g *Graph) IntegrityErrors() []IntegrityError {
	return g.integrity
}

// Corrupt reports whether the resource's chain was flagged during
// construction (cyclic or over-deep). Orphan scenarios exclude corrupt
// chains: a cycle is provider data damage, not a dangling reference.
func (g *Graph) Corrupt(id string) bool {
	res, ok := g.resolved[id]
	return ok && res.cyclic
}

// NodeCount returns the number of resources in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of references indexed at construction.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}
