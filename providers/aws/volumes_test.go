package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/types"
)

func TestListVolumesConvertsAttachmentState(t *testing.T) {
	created := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	client := &fakeEC2{
		volumes: &ec2.DescribeVolumesOutput{
			Volumes: []ec2types.Volume{
				{
					VolumeId:         aws.String("vol-free"),
					Size:             aws.Int32(200),
					VolumeType:       ec2types.VolumeTypeGp3,
					State:            ec2types.VolumeStateAvailable,
					CreateTime:       aws.Time(created),
					AvailabilityZone: aws.String("eu-west-1b"),
					Encrypted:        aws.Bool(true),
				},
				{
					VolumeId:   aws.String("vol-used"),
					Size:       aws.Int32(50),
					VolumeType: ec2types.VolumeTypeIo2,
					State:      ec2types.VolumeStateInUse,
					Attachments: []ec2types.VolumeAttachment{
						{InstanceId: aws.String("i-0abc")},
					},
				},
			},
		},
	}

	resources, err := testProvider(client).listVolumes(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)

	free := resources[0]
	assert.Equal(t, types.KindDisk, free.Kind)
	assert.Equal(t, "unattached", free.State)
	assert.Equal(t, int64(200), free.Attributes[types.AttrSizeGB])
	assert.Equal(t, types.MediaBalanced, free.Attributes[types.AttrMediaType])
	assert.Equal(t, true, free.Attributes["encrypted"])
	assert.NotContains(t, free.Attributes, types.AttrAttachedTo)

	used := resources[1]
	assert.Equal(t, "attached", used.State)
	assert.Equal(t, types.MediaPremium, used.Attributes[types.AttrMediaType])
	assert.Equal(t, []string{"i-0abc"}, used.Attributes[types.AttrAttachedTo])
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, types.MediaBalanced, mediaTypeFor(ec2types.VolumeTypeGp2))
	assert.Equal(t, types.MediaBalanced, mediaTypeFor(ec2types.VolumeTypeGp3))
	assert.Equal(t, types.MediaPremium, mediaTypeFor(ec2types.VolumeTypeIo1))
	assert.Equal(t, types.MediaPremium, mediaTypeFor(ec2types.VolumeTypeIo2))
	assert.Equal(t, types.MediaStandard, mediaTypeFor(ec2types.VolumeTypeSc1))
	assert.Equal(t, types.MediaStandard, mediaTypeFor(ec2types.VolumeTypeStandard))
}

func TestListSnapshotsConverts(t *testing.T) {
	started := time.Date(2024, 11, 5, 3, 0, 0, 0, time.UTC)
	client := &fakeEC2{
		snapshots: &ec2.DescribeSnapshotsOutput{
			Snapshots: []ec2types.Snapshot{{
				SnapshotId: aws.String("snap-1"),
				VolumeId:   aws.String("vol-1"),
				VolumeSize: aws.Int32(80),
				StartTime:  aws.Time(started),
				State:      ec2types.SnapshotStateCompleted,
				Encrypted:  aws.Bool(false),
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String("nightly-backup")},
				},
			}},
		},
	}

	resources, err := testProvider(client).listSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, types.KindSnapshot, r.Kind)
	assert.Equal(t, "snap-1", r.ID)
	assert.Equal(t, "nightly-backup", r.Name)
	assert.Equal(t, "completed", r.State)
	assert.True(t, r.CreatedAt.Equal(started))
	assert.Equal(t, int64(80), r.Attributes[types.AttrSizeGB])
	assert.Equal(t, "vol-1", r.Attributes["volume_id"])
}
