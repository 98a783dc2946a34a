package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/velhola/gleaner/types"
)

// Built-in cost model references, usable as cost_model in scenario rules.
const (
	ModelNone            = "none"
	ModelFullCompute     = "full_compute"
	ModelStoppedStorage  = "stopped_instance_storage"
	ModelStoppedDatabase = "stopped_database"
	ModelDiskStorage     = "disk_storage"
	ModelSnapshotStorage = "snapshot_storage"
	ModelStaticIP        = "static_ip_overhead"
	ModelForwardingRule  = "forwarding_rule_overhead"
	ModelNATGateway      = "nat_gateway_overhead"
	ModelHealthCheck     = "health_check_overhead"
	ModelRightsizing     = "compute_rightsizing"
	ModelBucketStorage   = "bucket_storage"
)

func registerBuiltins(r *Registry) {
	// Names are unique literals, Register cannot fail here.
	_ = r.Register(ModelNone, modelNone)
	_ = r.Register(ModelFullCompute, modelFullCompute)
	_ = r.Register(ModelStoppedStorage, modelStoppedStorage)
	_ = r.Register(ModelStoppedDatabase, modelStoppedDatabase)
	_ = r.Register(ModelDiskStorage, modelDiskStorage)
	_ = r.Register(ModelSnapshotStorage, modelSnapshotStorage)
	_ = r.Register(ModelStaticIP, modelStaticIP)
	_ = r.Register(ModelForwardingRule, modelForwardingRule)
	_ = r.Register(ModelNATGateway, modelNATGateway)
	_ = r.Register(ModelHealthCheck, modelHealthCheck)
	_ = r.Register(ModelRightsizing, modelRightsizing)
	_ = r.Register(ModelBucketStorage, modelBucketStorage)
}

// modelNone is for hygiene scenarios that flag a state without a price tag.
func modelNone(_ Input, s *Snapshot) (types.CostBreakdown, error) {
	b := types.NewCostBreakdown()
	b.Currency = s.Currency()
	return b, nil
}

// modelFullCompute treats the resource's entire compute and accelerator
// spend as waste. Used by idle-instance scenarios: nothing durable is known
// about when idleness began, so nothing is extrapolated backwards.
func modelFullCompute(in Input, s *Snapshot) (types.CostBreakdown, error) {
	machineType, ok := in.Resource.StrAttr(types.AttrMachineType)
	if !ok {
		return types.CostBreakdown{}, fmt.Errorf("resource %s has no machine type", in.Resource.ID)
	}

	b := types.NewCostBreakdown()

	compute, err := s.ComputeComponent(machineType, in.Resource.Region)
	if err != nil {
		return types.CostBreakdown{}, err
	}
	b.Add(compute)

	if accType, ok := in.Resource.StrAttr(types.AttrAcceleratorType); ok {
		count, _ := in.Resource.IntAttr(types.AttrAcceleratorCount)
		if count <= 0 {
			count = 1
		}
		acc, err := s.AcceleratorComponent(accType, count, in.Resource.Region)
		if err != nil {
			return types.CostBreakdown{}, err
		}
		b.Add(acc)
	}

	return b, nil
}

// modelStoppedStorage prices the disks a stopped instance keeps paying for.
// Stopped-since is durable, so the breakdown also carries what the stop has
// already cost.
func modelStoppedStorage(in Input, s *Snapshot) (types.CostBreakdown, error) {
	return storageBreakdown(in, s, true)
}

// modelDiskStorage prices an unattached disk. Durable.
func modelDiskStorage(in Input, s *Snapshot) (types.CostBreakdown, error) {
	return storageBreakdown(in, s, true)
}

// modelBucketStorage prices a bucket's stored bytes. A missing lifecycle
// policy is a point-in-time misconfiguration, so nothing is extrapolated.
func modelBucketStorage(in Input, s *Snapshot) (types.CostBreakdown, error) {
	return storageBreakdown(in, s, false)
}

func storageBreakdown(in Input, s *Snapshot, durable bool) (types.CostBreakdown, error) {
	sizeGB, ok := in.Resource.IntAttr(types.AttrSizeGB)
	if !ok {
		return types.CostBreakdown{}, fmt.Errorf("resource %s has no size", in.Resource.ID)
	}
	media, ok := in.Resource.StrAttr(types.AttrMediaType)
	if !ok {
		media = paramString(in.Params, "media_type", types.MediaBalanced)
	}

	b := types.NewCostBreakdown()
	storage, err := s.StorageComponent(sizeGB, media, in.Resource.Region)
	if err != nil {
		return types.CostBreakdown{}, err
	}
	b.Add(storage)

	if durable {
		b.AlreadyWasted = extrapolateStateAge(in, b.TotalMonthly)
	}
	return b, nil
}

// modelStoppedDatabase prices a stopped database's retained storage and
// backups. Durable.
func modelStoppedDatabase(in Input, s *Snapshot) (types.CostBreakdown, error) {
	b, err := storageBreakdown(in, s, false)
	if err != nil {
		return types.CostBreakdown{}, err
	}

	if backupGB, ok := in.Resource.IntAttr("backup_gb"); ok && backupGB > 0 {
		backup, err := s.StorageComponent(backupGB, "snapshot", in.Resource.Region)
		if err != nil {
			return types.CostBreakdown{}, err
		}
		backup.Name = types.CostBackup
		b.Add(backup)
	}

	b.AlreadyWasted = extrapolateStateAge(in, b.TotalMonthly)
	return b, nil
}

// modelSnapshotStorage prices a forgotten machine snapshot by age. Durable:
// it has cost money since it was taken.
func modelSnapshotStorage(in Input, s *Snapshot) (types.CostBreakdown, error) {
	sizeGB, ok := in.Resource.IntAttr(types.AttrSizeGB)
	if !ok {
		return types.CostBreakdown{}, fmt.Errorf("resource %s has no size", in.Resource.ID)
	}

	b := types.NewCostBreakdown()
	storage, err := s.StorageComponent(sizeGB, "snapshot", in.Resource.Region)
	if err != nil {
		return types.CostBreakdown{}, err
	}
	b.Add(storage)
	b.AlreadyWasted = extrapolateStateAge(in, b.TotalMonthly)
	return b, nil
}

// modelStaticIP prices an unassigned address. Extrapolates only when the
// unassignment time is actually known.
func modelStaticIP(in Input, s *Snapshot) (types.CostBreakdown, error) {
	return fixedBreakdown(in, s, types.CostOverhead, "static_ip", 1)
}

// modelForwardingRule prices orphaned forwarding rules through the tiered
// fixed-cost rule. unit_count lets an aggregate scenario price several rules
// in one finding.
func modelForwardingRule(in Input, s *Snapshot) (types.CostBreakdown, error) {
	count := paramInt64(in.Params, "unit_count", 1)
	return fixedBreakdown(in, s, types.CostOverhead, "forwarding_rule", count)
}

// modelNATGateway prices an idle NAT gateway's always-on hourly charge.
func modelNATGateway(in Input, s *Snapshot) (types.CostBreakdown, error) {
	return fixedBreakdown(in, s, types.CostOverhead, "nat_gateway", 1)
}

// modelHealthCheck prices health checks probing a dead or empty service.
func modelHealthCheck(in Input, s *Snapshot) (types.CostBreakdown, error) {
	count := paramInt64(in.Params, "health_check_count", 1)
	return fixedBreakdown(in, s, types.CostHealthCheck, "health_check", count)
}

func fixedBreakdown(in Input, s *Snapshot, componentName, sku string, count int64) (types.CostBreakdown, error) {
	b := types.NewCostBreakdown()
	comp, err := s.FixedOverheadComponent(componentName, sku, count)
	if err != nil {
		return types.CostBreakdown{}, err
	}
	b.Add(comp)

	if !in.Resource.StateChangedAt.IsZero() {
		b.AlreadyWasted = extrapolateStateAge(in, b.TotalMonthly)
	}
	return b, nil
}

// modelRightsizing prices the delta between the current machine type and the
// recommended one. The delta clamps at zero; scenarios using this model set
// suppress_zero_cost so a clamped delta yields no finding.
func modelRightsizing(in Input, s *Snapshot) (types.CostBreakdown, error) {
	machineType, ok := in.Resource.StrAttr(types.AttrMachineType)
	if !ok {
		return types.CostBreakdown{}, fmt.Errorf("resource %s has no machine type", in.Resource.ID)
	}
	recommended := paramString(in.Params, "recommended_machine_type", "")
	if recommended == "" {
		return types.CostBreakdown{}, fmt.Errorf("rightsizing needs recommended_machine_type")
	}

	current, err := s.ComputeComponent(machineType, in.Resource.Region)
	if err != nil {
		return types.CostBreakdown{}, err
	}
	target, err := s.ComputeComponent(recommended, in.Resource.Region)
	if err != nil {
		return types.CostBreakdown{}, err
	}

	b := types.NewCostBreakdown()
	b.Add(types.CostComponent{
		Name:    types.CostCompute,
		Monthly: DeltaWaste(current.Monthly, target.Monthly),
		Formula: "current_monthly - recommended_monthly, clamped at zero",
		Inputs: map[string]string{
			"machine_type":             machineType,
			"recommended_machine_type": recommended,
			"current_monthly":          current.Monthly.String(),
			"recommended_monthly":      target.Monthly.String(),
		},
	})
	return b, nil
}

func extrapolateStateAge(in Input, monthly decimal.Decimal) decimal.Decimal {
	hours := decimal.NewFromFloat(in.Resource.StateAge(in.Now).Hours())
	return ExtrapolateWasted(monthly, hours).Round(2)
}
