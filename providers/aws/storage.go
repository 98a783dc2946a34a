package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/velhola/gleaner/types"
)

// listBuckets enumerates the S3 buckets homed in the adapter's region.
// ListBuckets is global, so each bucket is located first and foreign
// ones are dropped.
func (p *Provider) listBuckets(ctx context.Context) ([]types.Resource, error) {
	if err := p.throttle(ctx, "s3"); err != nil {
		return nil, err
	}
	output, err := p.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classify("list s3 buckets", err)
	}

	var resources []types.Resource
	for _, bucket := range output.Buckets {
		name := aws.ToString(bucket.Name)

		region, err := p.bucketRegion(ctx, name)
		if err != nil {
			return nil, err
		}
		if region != p.region {
			continue
		}

		resource := types.Resource{
			Kind:      types.KindBucket,
			ID:        name,
			Name:      name,
			Provider:  "aws",
			AccountID: p.accountID,
			Region:    region,
			State:     "active",
			CreatedAt: safeTime(bucket.CreationDate),
			Labels:    p.bucketLabels(ctx, name),
			Attributes: map[string]any{
				"lifecycle": p.bucketLifecycle(ctx, name),
			},
		}
		resources = append(resources, resource)
	}

	return resources, nil
}

func (p *Provider) bucketRegion(ctx context.Context, name string) (string, error) {
	if err := p.throttle(ctx, "s3"); err != nil {
		return "", err
	}
	output, err := p.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return "", classify("get bucket location", err)
	}

	// us-east-1 reports an empty location constraint.
	if output.LocationConstraint == "" {
		return "us-east-1", nil
	}
	return string(output.LocationConstraint), nil
}

// bucketLifecycle reports "configured" or "none". S3 answers a bucket
// without lifecycle rules with NoSuchLifecycleConfiguration rather
// than an empty list.
func (p *Provider) bucketLifecycle(ctx context.Context, name string) string {
	if err := p.throttle(ctx, "s3"); err != nil {
		return "none"
	}
	output, err := p.s3Client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchLifecycleConfiguration" {
			return "none"
		}
		if p.logger != nil {
			p.logger.Debug().Err(err).Str("bucket", name).Msg("lifecycle lookup failed, assuming none")
		}
		return "none"
	}
	if len(output.Rules) == 0 {
		return "none"
	}
	return "configured"
}

// bucketLabels fetches bucket tags best effort. An untagged bucket
// answers with NoSuchTagSet, which is not an error worth surfacing.
func (p *Provider) bucketLabels(ctx context.Context, name string) map[string]string {
	if err := p.throttle(ctx, "s3"); err != nil {
		return nil
	}
	output, err := p.s3Client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return nil
	}
	return s3TagLabels(output.TagSet)
}
