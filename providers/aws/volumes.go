package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/velhola/gleaner/types"
)

// listVolumes enumerates EBS volumes as disk resources.
func (p *Provider) listVolumes(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	paginator := ec2.NewDescribeVolumesPaginator(p.ec2Client, &ec2.DescribeVolumesInput{})

	for paginator.HasMorePages() {
		if err := p.throttle(ctx, "ec2"); err != nil {
			return nil, err
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("describe ebs volumes", err)
		}

		for _, volume := range output.Volumes {
			resources = append(resources, p.convertVolume(volume))
		}
	}

	return resources, nil
}

func (p *Provider) convertVolume(volume ec2types.Volume) types.Resource {
	labels := ec2TagLabels(volume.Tags)

	attrs := map[string]any{
		types.AttrSizeGB:    int64(aws.ToInt32(volume.Size)),
		types.AttrMediaType: mediaTypeFor(volume.VolumeType),
		"volume_type":       string(volume.VolumeType),
		"encrypted":         aws.ToBool(volume.Encrypted),
	}
	if attachments := volumeAttachments(volume.Attachments); len(attachments) > 0 {
		attrs[types.AttrAttachedTo] = attachments
	}

	return types.Resource{
		Kind:       types.KindDisk,
		ID:         aws.ToString(volume.VolumeId),
		Name:       nameOrID(labels, aws.ToString(volume.VolumeId)),
		Provider:   "aws",
		AccountID:  p.accountID,
		Region:     p.region,
		Zone:       aws.ToString(volume.AvailabilityZone),
		State:      volumeState(volume.State),
		CreatedAt:  safeTime(volume.CreateTime),
		Labels:     labels,
		Attributes: attrs,
	}
}

// volumeState maps the EBS lifecycle onto the attachment states the
// scenario library keys on. EBS has no detach timestamp, so unattached
// disks age from creation.
func volumeState(state ec2types.VolumeState) string {
	switch state {
	case ec2types.VolumeStateAvailable:
		return "unattached"
	case ec2types.VolumeStateInUse:
		return "attached"
	default:
		return string(state)
	}
}

// mediaTypeFor collapses EBS volume types into the media classes the
// cost models price.
func mediaTypeFor(volumeType ec2types.VolumeType) string {
	switch volumeType {
	case ec2types.VolumeTypeGp2, ec2types.VolumeTypeGp3:
		return types.MediaBalanced
	case ec2types.VolumeTypeIo1, ec2types.VolumeTypeIo2:
		return types.MediaPremium
	default:
		return types.MediaStandard
	}
}

func volumeAttachments(attachments []ec2types.VolumeAttachment) []string {
	var instances []string
	for _, att := range attachments {
		if id := aws.ToString(att.InstanceId); id != "" {
			instances = append(instances, id)
		}
	}
	return instances
}

// listSnapshots enumerates EBS snapshots owned by this account.
func (p *Provider) listSnapshots(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	paginator := ec2.NewDescribeSnapshotsPaginator(p.ec2Client, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})

	for paginator.HasMorePages() {
		if err := p.throttle(ctx, "ec2"); err != nil {
			return nil, err
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("describe ebs snapshots", err)
		}

		for _, snapshot := range output.Snapshots {
			resources = append(resources, p.convertSnapshot(snapshot))
		}
	}

	return resources, nil
}

func (p *Provider) convertSnapshot(snapshot ec2types.Snapshot) types.Resource {
	labels := ec2TagLabels(snapshot.Tags)

	return types.Resource{
		Kind:      types.KindSnapshot,
		ID:        aws.ToString(snapshot.SnapshotId),
		Name:      nameOrID(labels, aws.ToString(snapshot.SnapshotId)),
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		State:     string(snapshot.State),
		CreatedAt: safeTime(snapshot.StartTime),
		Labels:    labels,
		Attributes: map[string]any{
			types.AttrSizeGB: int64(aws.ToInt32(snapshot.VolumeSize)),
			"volume_id":      aws.ToString(snapshot.VolumeId),
			"encrypted":      aws.ToBool(snapshot.Encrypted),
		},
	}
}
