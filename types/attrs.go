package types

// Attribute keys shared between provider adapters and the evaluation
// pipeline. Adapters populate these on Resource.Attributes; predicates and
// the dependency graph read them back by the same names.
const (
	// AttrTarget is the id of the next hop in a load-balancing chain
	// (forwarding rule → proxy → url map → backend service).
	AttrTarget = "target"

	// AttrBackends lists the backend ids configured on a backend service.
	AttrBackends = "backends"

	AttrAttachedTo  = "attached_to"
	AttrSizeGB      = "size_gb"
	AttrMediaType   = "media_type"
	AttrMachineType = "machine_type"

	AttrAcceleratorType  = "accelerator_type"
	AttrAcceleratorCount = "accelerator_count"
)

// Media types priced by the storage component.
const (
	MediaStandard = "standard"
	MediaBalanced = "balanced"
	MediaPremium  = "premium"
)
