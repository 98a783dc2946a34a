package types

import (
	"time"
)

// Kind identifies a provider-agnostic resource category. Adapters translate
// provider-specific objects (EC2 instances, GCE VMs) into one of these.
type Kind string

const (
	KindVMInstance     Kind = "vm_instance"
	KindDisk           Kind = "disk"
	KindSnapshot       Kind = "snapshot"
	KindStaticIP       Kind = "static_ip"
	KindNATGateway     Kind = "nat_gateway"
	KindForwardingRule Kind = "forwarding_rule"
	KindTargetProxy    Kind = "target_proxy"
	KindURLMap         Kind = "url_map"
	KindBackendService Kind = "backend_service"
	KindInstanceGroup  Kind = "instance_group"
	KindBucket         Kind = "bucket"
	KindDatabase       Kind = "database"
	KindFunction       Kind = "function"
)

// Resource is a provider-agnostic snapshot of one cloud resource, taken at
// enumeration time. It is immutable for the duration of the scan that
// created it; evaluators only read it.
type Resource struct {
	Kind      Kind              `json:"kind"`
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Provider  string            `json:"provider"`
	AccountID string            `json:"account_id"`
	Region    string            `json:"region"`
	Zone      string            `json:"zone,omitempty"`
	State     string            `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	// StateChangedAt is the last observed state transition (stop time,
	// detach time). Zero when the provider does not report one.
	StateChangedAt time.Time         `json:"state_changed_at,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	// Attributes carries kind-specific fields: machine type, disk size and
	// media, backend lists, target references. Interpreted per kind.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Age returns the elapsed time since creation, as seen at now.
func (r Resource) Age(now time.Time) time.Duration {
	if r.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(r.CreatedAt)
}

// StateAge returns the elapsed time since the last state transition,
// falling back to creation time when no transition was recorded.
func (r Resource) StateAge(now time.Time) time.Duration {
	if !r.StateChangedAt.IsZero() {
		return now.Sub(r.StateChangedAt)
	}
	return r.Age(now)
}

// Label returns a label value, empty when absent.
func (r Resource) Label(key string) string {
	return r.Labels[key]
}

// StrAttr returns a string attribute and whether it was present.
func (r Resource) StrAttr(key string) (string, bool) {
	v, ok := r.Attributes[key].(string)
	return v, ok
}

// IntAttr returns an integer attribute. JSON round-trips store numbers as
// float64, so both forms are accepted.
func (r Resource) IntAttr(key string) (int64, bool) {
	switch v := r.Attributes[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// FloatAttr returns a numeric attribute as float64.
func (r Resource) FloatAttr(key string) (float64, bool) {
	switch v := r.Attributes[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// BoolAttr returns a boolean attribute, false when absent.
func (r Resource) BoolAttr(key string) (bool, bool) {
	v, ok := r.Attributes[key].(bool)
	return v, ok
}

// StrSliceAttr returns a string-slice attribute. Both []string and []any
// (the shape produced by JSON decoding) are accepted.
func (r Resource) StrSliceAttr(key string) ([]string, bool) {
	switch v := r.Attributes[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// Filter narrows an enumeration request.
type Filter struct {
	Kinds  []Kind            `json:"kinds,omitempty"`
	Region string            `json:"region,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	IDs    []string          `json:"ids,omitempty"`
}

// Matches reports whether the resource passes the filter.
func (r Resource) Matches(f Filter) bool {
	return r.matchesKind(f) && r.matchesRegion(f) && r.matchesIDs(f) && r.matchesLabels(f)
}

func (r Resource) matchesKind(f Filter) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if r.Kind == k {
			return true
		}
	}
	return false
}

func (r Resource) matchesRegion(f Filter) bool {
	return f.Region == "" || r.Region == f.Region
}

func (r Resource) matchesIDs(f Filter) bool {
	if len(f.IDs) == 0 {
		return true
	}
	for _, id := range f.IDs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (r Resource) matchesLabels(f Filter) bool {
	for key, value := range f.Labels {
		if r.Labels[key] != value {
			return false
		}
	}
	return true
}
