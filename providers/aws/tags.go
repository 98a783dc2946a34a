package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Tag conversion keeps provider tags verbatim as resource labels; the
// scenario layer matches on raw keys, so no normalization happens here.

func ec2TagLabels(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}

func rdsTagLabels(tags []rdstypes.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}

func s3TagLabels(tags []s3types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}

func asgTagLabels(tags []asgtypes.TagDescription) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}

// nameOrID prefers the conventional Name tag over the raw resource id.
func nameOrID(labels map[string]string, id string) string {
	if name := labels["Name"]; name != "" {
		return name
	}
	return id
}
