package aws

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/velhola/gleaner/types"
)

// listInstances enumerates EC2 instances as vm_instance resources.
// Terminated instances are gone for billing purposes and are dropped.
func (p *Provider) listInstances(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	paginator := ec2.NewDescribeInstancesPaginator(p.ec2Client, &ec2.DescribeInstancesInput{})

	for paginator.HasMorePages() {
		if err := p.throttle(ctx, "ec2"); err != nil {
			return nil, err
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("describe ec2 instances", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				if instanceState(instance) == "terminated" {
					continue
				}
				resources = append(resources, p.convertInstance(instance))
			}
		}
	}

	return resources, nil
}

func (p *Provider) convertInstance(instance ec2types.Instance) types.Resource {
	labels := ec2TagLabels(instance.Tags)

	zone := ""
	if instance.Placement != nil {
		zone = aws.ToString(instance.Placement.AvailabilityZone)
	}

	res := types.Resource{
		Kind:      types.KindVMInstance,
		ID:        aws.ToString(instance.InstanceId),
		Name:      nameOrID(labels, aws.ToString(instance.InstanceId)),
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		Zone:      zone,
		State:     instanceState(instance),
		CreatedAt: safeTime(instance.LaunchTime),
		Labels:    labels,
		Attributes: map[string]any{
			types.AttrMachineType: string(instance.InstanceType),
			"vpc_id":              aws.ToString(instance.VpcId),
			"subnet_id":           aws.ToString(instance.SubnetId),
		},
	}

	if res.State == "stopped" {
		res.StateChangedAt = parseStateTransition(aws.ToString(instance.StateTransitionReason))
	}

	return res
}

func instanceState(instance ec2types.Instance) string {
	if instance.State == nil {
		return "unknown"
	}
	return string(instance.State.Name)
}

// parseStateTransition pulls the timestamp out of reasons like
// "User initiated (2025-06-01 12:34:56 GMT)". EC2 reports the stop time
// nowhere else. Zero when the format is unexpected, which callers treat
// as "stop time unknown".
func parseStateTransition(reason string) time.Time {
	start := strings.LastIndex(reason, "(")
	end := strings.LastIndex(reason, ")")
	if start < 0 || end <= start {
		return time.Time{}
	}
	ts, err := time.Parse("2006-01-02 15:04:05 MST", reason[start+1:end])
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
