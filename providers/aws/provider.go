// Package aws adapts AWS accounts to the gleaner enumeration contract.
// Each supported resource kind maps to one SDK service: EC2 for
// instances, disks, snapshots, addresses and NAT gateways, ELBv2 for the
// load-balancing chain, RDS, S3, Lambda and Auto Scaling for the rest.
// CloudWatch doubles as the metric source.
package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/providers"
	"github.com/velhola/gleaner/ratelimit"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

func init() {
	providers.Register("aws", func(ctx context.Context, cfg providers.Config) (providers.Enumerator, error) {
		return New(ctx, cfg)
	})
}

// Narrow views of the SDK clients, one per service, covering exactly the
// calls the adapter makes. The SDK paginators accept them, and tests
// substitute fakes.

type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DescribeNatGateways(ctx context.Context, params *ec2.DescribeNatGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error)
}

type elbv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
	DescribeListeners(ctx context.Context, params *elasticloadbalancingv2.DescribeListenersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeListenersOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetGroupsInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error)
	DescribeTargetHealth(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetHealthInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetHealthOutput, error)
}

type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

type lambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListTags(ctx context.Context, params *lambda.ListTagsInput, optFns ...func(*lambda.Options)) (*lambda.ListTagsOutput, error)
}

type autoscalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

type cloudwatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Provider enumerates one AWS account in one region.
type Provider struct {
	ec2Client    ec2API
	elbv2Client  elbv2API
	rdsClient    rdsAPI
	s3Client     s3API
	lambdaClient lambdaAPI
	asgClient    autoscalingAPI
	cwClient     cloudwatchAPI
	stsClient    stsAPI

	region    string
	accountID string
	limits    *ratelimit.Registry
	logger    *telemetry.Logger
}

// New opens an adapter session using the default AWS credential chain.
func New(ctx context.Context, cfg providers.Config) (*Provider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := &Provider{
		ec2Client:    ec2.NewFromConfig(awsCfg),
		elbv2Client:  elasticloadbalancingv2.NewFromConfig(awsCfg),
		rdsClient:    rds.NewFromConfig(awsCfg),
		s3Client:     s3.NewFromConfig(awsCfg),
		lambdaClient: lambda.NewFromConfig(awsCfg),
		asgClient:    autoscaling.NewFromConfig(awsCfg),
		cwClient:     cloudwatch.NewFromConfig(awsCfg),
		stsClient:    sts.NewFromConfig(awsCfg),
		region:       cfg.Region,
		limits:       cfg.Limits,
		logger:       cfg.Logger,
	}

	ident, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, classify("resolve caller identity", err)
	}
	p.accountID = aws.ToString(ident.Account)

	return p, nil
}

func (p *Provider) Name() string      { return "aws" }
func (p *Provider) AccountID() string { return p.accountID }
func (p *Provider) Region() string    { return p.region }

// MetricSource exposes CloudWatch as the metric backend for this account.
func (p *Provider) MetricSource() metrics.Source {
	return &cloudWatchSource{p: p}
}

type lister func(ctx context.Context) ([]types.Resource, error)

func (p *Provider) listers() map[types.Kind]lister {
	return map[types.Kind]lister{
		types.KindVMInstance:     p.listInstances,
		types.KindDisk:           p.listVolumes,
		types.KindSnapshot:       p.listSnapshots,
		types.KindStaticIP:       p.listAddresses,
		types.KindNATGateway:     p.listNATGateways,
		types.KindForwardingRule: p.listForwardingRules,
		types.KindBackendService: p.listBackendServices,
		types.KindInstanceGroup:  p.listScalingGroups,
		types.KindDatabase:       p.listDatabases,
		types.KindBucket:         p.listBuckets,
		types.KindFunction:       p.listFunctions,
	}
}

// Kinds reports the resource kinds this adapter enumerates, sorted.
func (p *Provider) Kinds() []types.Kind {
	listers := p.listers()
	kinds := make([]types.Kind, 0, len(listers))
	for kind := range listers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// List enumerates every resource of one kind, retrying transient API
// failures before giving up.
func (p *Provider) List(ctx context.Context, kind types.Kind) ([]types.Resource, error) {
	fn, ok := p.listers()[kind]
	if !ok {
		return nil, fmt.Errorf("kind %s not supported by the aws adapter", kind)
	}

	var out []types.Resource
	err := providers.Retry(ctx, func() error {
		resources, err := fn(ctx)
		if err != nil {
			return err
		}
		out = resources
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// throttle blocks until the account's token bucket for the named API
// grants a slot.
func (p *Provider) throttle(ctx context.Context, api string) error {
	if p.limits == nil {
		return nil
	}
	return p.limits.Wait(ctx, p.accountID, api)
}

func safeTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
