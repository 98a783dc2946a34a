package types

// BuildResourceMap indexes resources by ID for graph lookups.
func BuildResourceMap(resources []Resource) map[string]Resource {
	m := make(map[string]Resource, len(resources))
	for _, r := range resources {
		m[r.ID] = r
	}
	return m
}

// GroupByKind buckets resources by kind, preserving input order within a kind.
func GroupByKind(resources []Resource) map[Kind][]Resource {
	m := make(map[Kind][]Resource)
	for _, r := range resources {
		m[r.Kind] = append(m[r.Kind], r)
	}
	return m
}
