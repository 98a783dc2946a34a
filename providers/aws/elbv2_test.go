package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/types"
)

type fakeELBV2 struct {
	loadBalancers *elasticloadbalancingv2.DescribeLoadBalancersOutput
	listeners     map[string]*elasticloadbalancingv2.DescribeListenersOutput
	targetGroups  *elasticloadbalancingv2.DescribeTargetGroupsOutput
	health        map[string]*elasticloadbalancingv2.DescribeTargetHealthOutput
}

func (f *fakeELBV2) DescribeLoadBalancers(ctx context.Context, _ *elasticloadbalancingv2.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	if f.loadBalancers == nil {
		return &elasticloadbalancingv2.DescribeLoadBalancersOutput{}, nil
	}
	return f.loadBalancers, nil
}

func (f *fakeELBV2) DescribeListeners(ctx context.Context, params *elasticloadbalancingv2.DescribeListenersInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeListenersOutput, error) {
	out, ok := f.listeners[aws.ToString(params.LoadBalancerArn)]
	if !ok {
		return &elasticloadbalancingv2.DescribeListenersOutput{}, nil
	}
	return out, nil
}

func (f *fakeELBV2) DescribeTargetGroups(ctx context.Context, _ *elasticloadbalancingv2.DescribeTargetGroupsInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error) {
	if f.targetGroups == nil {
		return &elasticloadbalancingv2.DescribeTargetGroupsOutput{}, nil
	}
	return f.targetGroups, nil
}

func (f *fakeELBV2) DescribeTargetHealth(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetHealthInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetHealthOutput, error) {
	out, ok := f.health[aws.ToString(params.TargetGroupArn)]
	if !ok {
		return &elasticloadbalancingv2.DescribeTargetHealthOutput{}, nil
	}
	return out, nil
}

const (
	testLBARN = "arn:aws:elasticloadbalancing:eu-west-1:123456789012:loadbalancer/app/web/50dc6c"
	testTGARN = "arn:aws:elasticloadbalancing:eu-west-1:123456789012:targetgroup/web/73e2d6"
)

func TestListForwardingRulesMapsListeners(t *testing.T) {
	created := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeELBV2{
		loadBalancers: &elasticloadbalancingv2.DescribeLoadBalancersOutput{
			LoadBalancers: []elbv2types.LoadBalancer{{
				LoadBalancerArn:  aws.String(testLBARN),
				LoadBalancerName: aws.String("web"),
				CreatedTime:      aws.Time(created),
				State:            &elbv2types.LoadBalancerState{Code: elbv2types.LoadBalancerStateEnumActive},
			}},
		},
		listeners: map[string]*elasticloadbalancingv2.DescribeListenersOutput{
			testLBARN: {
				Listeners: []elbv2types.Listener{
					{
						ListenerArn: aws.String(testLBARN + "/listener/https"),
						Port:        aws.Int32(443),
						Protocol:    elbv2types.ProtocolEnumHttps,
						DefaultActions: []elbv2types.Action{{
							Type:           elbv2types.ActionTypeEnumForward,
							TargetGroupArn: aws.String(testTGARN),
						}},
					},
					{
						ListenerArn: aws.String(testLBARN + "/listener/http"),
						Port:        aws.Int32(80),
						Protocol:    elbv2types.ProtocolEnumHttp,
						DefaultActions: []elbv2types.Action{{
							Type: elbv2types.ActionTypeEnumRedirect,
						}},
					},
				},
			},
		},
	}

	p := &Provider{elbv2Client: client, region: "eu-west-1", accountID: "123456789012"}
	resources, err := p.listForwardingRules(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)

	https := resources[0]
	assert.Equal(t, types.KindForwardingRule, https.Kind)
	assert.Equal(t, "web:443", https.Name)
	assert.Equal(t, "active", https.State)
	assert.Equal(t, testTGARN, https.Attributes[types.AttrTarget])
	assert.True(t, https.CreatedAt.Equal(created))

	redirect := resources[1]
	assert.Equal(t, "web:80", redirect.Name)
	assert.NotContains(t, redirect.Attributes, types.AttrTarget,
		"redirect listeners terminate traffic themselves")
}

func TestDefaultTargetGroupPrefersFirstForward(t *testing.T) {
	actions := []elbv2types.Action{
		{Type: elbv2types.ActionTypeEnumAuthenticateOidc},
		{
			Type: elbv2types.ActionTypeEnumForward,
			ForwardConfig: &elbv2types.ForwardActionConfig{
				TargetGroups: []elbv2types.TargetGroupTuple{
					{TargetGroupArn: aws.String("arn:tg-blue"), Weight: aws.Int32(90)},
					{TargetGroupArn: aws.String("arn:tg-green"), Weight: aws.Int32(10)},
				},
			},
		},
	}
	assert.Equal(t, "arn:tg-blue", defaultTargetGroup(actions))
	assert.Empty(t, defaultTargetGroup(nil))
}

func TestListBackendServicesCollectsTargets(t *testing.T) {
	client := &fakeELBV2{
		targetGroups: &elasticloadbalancingv2.DescribeTargetGroupsOutput{
			TargetGroups: []elbv2types.TargetGroup{{
				TargetGroupArn:  aws.String(testTGARN),
				TargetGroupName: aws.String("web"),
				Port:            aws.Int32(8080),
				Protocol:        elbv2types.ProtocolEnumHttp,
				VpcId:           aws.String("vpc-1"),
				TargetType:      elbv2types.TargetTypeEnumInstance,
			}},
		},
		health: map[string]*elasticloadbalancingv2.DescribeTargetHealthOutput{
			testTGARN: {
				TargetHealthDescriptions: []elbv2types.TargetHealthDescription{
					{Target: &elbv2types.TargetDescription{Id: aws.String("i-1")}},
					{Target: &elbv2types.TargetDescription{Id: aws.String("i-2")}},
				},
			},
		},
	}

	p := &Provider{elbv2Client: client, region: "eu-west-1", accountID: "123456789012"}
	resources, err := p.listBackendServices(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, types.KindBackendService, r.Kind)
	assert.Equal(t, testTGARN, r.ID)
	assert.Equal(t, "web", r.Name)
	assert.Equal(t, []string{"i-1", "i-2"}, r.Attributes[types.AttrBackends])
	assert.Equal(t, int64(8080), r.Attributes["port"])
}

func TestListBackendServicesEmptyGroupKeepsEmptyBackends(t *testing.T) {
	client := &fakeELBV2{
		targetGroups: &elasticloadbalancingv2.DescribeTargetGroupsOutput{
			TargetGroups: []elbv2types.TargetGroup{{
				TargetGroupArn:  aws.String(testTGARN),
				TargetGroupName: aws.String("empty"),
			}},
		},
	}

	p := &Provider{elbv2Client: client, region: "eu-west-1", accountID: "123456789012"}
	resources, err := p.listBackendServices(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, []string{}, resources[0].Attributes[types.AttrBackends])
}

func TestBackendHealthSnapshot(t *testing.T) {
	client := &fakeELBV2{
		targetGroups: &elasticloadbalancingv2.DescribeTargetGroupsOutput{
			TargetGroups: []elbv2types.TargetGroup{{
				TargetGroupArn: aws.String(testTGARN),
			}},
		},
		health: map[string]*elasticloadbalancingv2.DescribeTargetHealthOutput{
			testTGARN: {
				TargetHealthDescriptions: []elbv2types.TargetHealthDescription{
					{
						Target:       &elbv2types.TargetDescription{Id: aws.String("i-up")},
						TargetHealth: &elbv2types.TargetHealth{State: elbv2types.TargetHealthStateEnumHealthy},
					},
					{
						Target:       &elbv2types.TargetDescription{Id: aws.String("i-down")},
						TargetHealth: &elbv2types.TargetHealth{State: elbv2types.TargetHealthStateEnumUnhealthy},
					},
					{
						Target:       &elbv2types.TargetDescription{Id: aws.String("i-new")},
						TargetHealth: &elbv2types.TargetHealth{State: elbv2types.TargetHealthStateEnumInitial},
					},
				},
			},
		},
	}

	p := &Provider{elbv2Client: client, region: "eu-west-1", accountID: "123456789012"}
	snapshot, err := p.BackendHealth(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot[testTGARN], 3)
	assert.Equal(t, graph.BackendHealth{BackendID: "i-up", State: graph.HealthHealthy}, snapshot[testTGARN][0])
	assert.Equal(t, graph.BackendHealth{BackendID: "i-down", State: graph.HealthUnhealthy}, snapshot[testTGARN][1])
	assert.Equal(t, graph.BackendHealth{BackendID: "i-new", State: graph.HealthUnknown}, snapshot[testTGARN][2])
}
