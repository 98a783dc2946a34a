package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/velhola/gleaner/types"
)

// listScalingGroups enumerates auto scaling groups as instance groups.
// A group that holds zero instances reports the synthetic state
// "empty" so the rules can tell it apart from one that is merely small.
func (p *Provider) listScalingGroups(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	pages := autoscaling.NewDescribeAutoScalingGroupsPaginator(p.asgClient, &autoscaling.DescribeAutoScalingGroupsInput{})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "autoscaling"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe auto scaling groups", err)
		}

		for _, group := range page.AutoScalingGroups {
			resources = append(resources, p.convertScalingGroup(group))
		}
	}

	return resources, nil
}

func (p *Provider) convertScalingGroup(group asgtypes.AutoScalingGroup) types.Resource {
	state := "active"
	if len(group.Instances) == 0 {
		state = "empty"
	}

	instances := make([]string, 0, len(group.Instances))
	for _, instance := range group.Instances {
		instances = append(instances, aws.ToString(instance.InstanceId))
	}

	attrs := map[string]any{
		"min_size":         int64(aws.ToInt32(group.MinSize)),
		"max_size":         int64(aws.ToInt32(group.MaxSize)),
		"desired_capacity": int64(aws.ToInt32(group.DesiredCapacity)),
		"instance_count":   int64(len(group.Instances)),
	}
	if len(instances) > 0 {
		attrs["instances"] = instances
	}
	if len(group.TargetGroupARNs) > 0 {
		attrs["target_groups"] = append([]string(nil), group.TargetGroupARNs...)
	}

	labels := asgTagLabels(group.Tags)
	name := aws.ToString(group.AutoScalingGroupName)

	return types.Resource{
		Kind:       types.KindInstanceGroup,
		ID:         name,
		Name:       name,
		Provider:   "aws",
		AccountID:  p.accountID,
		Region:     p.region,
		State:      state,
		CreatedAt:  safeTime(group.CreatedTime),
		Labels:     labels,
		Attributes: attrs,
	}
}
