package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/velhola/gleaner/types"
)

// listAddresses enumerates Elastic IPs as static_ip resources. EC2
// reports no allocation timestamp for addresses, so CreatedAt stays zero
// and unassigned addresses are flagged without an age grace.
func (p *Provider) listAddresses(ctx context.Context) ([]types.Resource, error) {
	if err := p.throttle(ctx, "ec2"); err != nil {
		return nil, err
	}

	output, err := p.ec2Client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, classify("describe elastic ips", err)
	}

	resources := make([]types.Resource, 0, len(output.Addresses))
	for _, address := range output.Addresses {
		resources = append(resources, p.convertAddress(address))
	}

	return resources, nil
}

func (p *Provider) convertAddress(address ec2types.Address) types.Resource {
	labels := ec2TagLabels(address.Tags)

	state := "unassigned"
	attrs := map[string]any{
		"public_ip": aws.ToString(address.PublicIp),
	}
	if address.InstanceId != nil || address.NetworkInterfaceId != nil {
		state = "assigned"
		if id := aws.ToString(address.InstanceId); id != "" {
			attrs[types.AttrAttachedTo] = []string{id}
		}
	}

	return types.Resource{
		Kind:       types.KindStaticIP,
		ID:         aws.ToString(address.AllocationId),
		Name:       nameOrID(labels, aws.ToString(address.PublicIp)),
		Provider:   "aws",
		AccountID:  p.accountID,
		Region:     p.region,
		State:      state,
		Labels:     labels,
		Attributes: attrs,
	}
}

// listNATGateways enumerates NAT gateways. Deleted ones no longer bill
// and are dropped.
func (p *Provider) listNATGateways(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	paginator := ec2.NewDescribeNatGatewaysPaginator(p.ec2Client, &ec2.DescribeNatGatewaysInput{})

	for paginator.HasMorePages() {
		if err := p.throttle(ctx, "ec2"); err != nil {
			return nil, err
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("describe nat gateways", err)
		}

		for _, gateway := range output.NatGateways {
			if gateway.State == ec2types.NatGatewayStateDeleted {
				continue
			}
			resources = append(resources, p.convertNATGateway(gateway))
		}
	}

	return resources, nil
}

func (p *Provider) convertNATGateway(gateway ec2types.NatGateway) types.Resource {
	labels := ec2TagLabels(gateway.Tags)

	return types.Resource{
		Kind:      types.KindNATGateway,
		ID:        aws.ToString(gateway.NatGatewayId),
		Name:      nameOrID(labels, aws.ToString(gateway.NatGatewayId)),
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		State:     natGatewayState(gateway.State),
		CreatedAt: safeTime(gateway.CreateTime),
		Labels:    labels,
		Attributes: map[string]any{
			"vpc_id":    aws.ToString(gateway.VpcId),
			"subnet_id": aws.ToString(gateway.SubnetId),
		},
	}
}

func natGatewayState(state ec2types.NatGatewayState) string {
	if state == ec2types.NatGatewayStateAvailable {
		return "active"
	}
	return string(state)
}
