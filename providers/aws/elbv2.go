package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/types"
)

// The ELBv2 model flattens onto the reference chain as two hops:
// listeners are the forwarding rules (they own the entry port) and
// target groups are the backend services they point at. Listeners with
// redirect or fixed-response defaults terminate traffic themselves and
// carry no target.

// listForwardingRules enumerates every listener on every load balancer.
func (p *Provider) listForwardingRules(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	lbPages := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(p.elbv2Client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})

	for lbPages.HasMorePages() {
		if err := p.throttle(ctx, "elbv2"); err != nil {
			return nil, err
		}
		page, err := lbPages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe load balancers", err)
		}

		for _, lb := range page.LoadBalancers {
			listeners, err := p.listenersFor(ctx, lb)
			if err != nil {
				return nil, err
			}
			resources = append(resources, listeners...)
		}
	}

	return resources, nil
}

func (p *Provider) listenersFor(ctx context.Context, lb elbv2types.LoadBalancer) ([]types.Resource, error) {
	var resources []types.Resource
	pages := elasticloadbalancingv2.NewDescribeListenersPaginator(p.elbv2Client, &elasticloadbalancingv2.DescribeListenersInput{
		LoadBalancerArn: lb.LoadBalancerArn,
	})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "elbv2"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe listeners", err)
		}

		for _, listener := range page.Listeners {
			resources = append(resources, p.convertListener(listener, lb))
		}
	}

	return resources, nil
}

func (p *Provider) convertListener(listener elbv2types.Listener, lb elbv2types.LoadBalancer) types.Resource {
	state := "active"
	if lb.State != nil && lb.State.Code != "" {
		state = string(lb.State.Code)
	}

	attrs := map[string]any{
		"protocol":      string(listener.Protocol),
		"port":          int64(aws.ToInt32(listener.Port)),
		"load_balancer": aws.ToString(lb.LoadBalancerArn),
	}
	if target := defaultTargetGroup(listener.DefaultActions); target != "" {
		attrs[types.AttrTarget] = target
	}

	return types.Resource{
		Kind:       types.KindForwardingRule,
		ID:         aws.ToString(listener.ListenerArn),
		Name:       fmt.Sprintf("%s:%d", aws.ToString(lb.LoadBalancerName), aws.ToInt32(listener.Port)),
		Provider:   "aws",
		AccountID:  p.accountID,
		Region:     p.region,
		State:      state,
		CreatedAt:  safeTime(lb.CreatedTime),
		Attributes: attrs,
	}
}

// defaultTargetGroup finds the target group a listener forwards to by
// default. Weighted forwards contribute their first group; the chain
// tracks one primary edge per rule.
func defaultTargetGroup(actions []elbv2types.Action) string {
	for _, action := range actions {
		if action.Type != elbv2types.ActionTypeEnumForward {
			continue
		}
		if arn := aws.ToString(action.TargetGroupArn); arn != "" {
			return arn
		}
		if action.ForwardConfig == nil {
			continue
		}
		for _, tg := range action.ForwardConfig.TargetGroups {
			if arn := aws.ToString(tg.TargetGroupArn); arn != "" {
				return arn
			}
		}
	}
	return ""
}

// listBackendServices enumerates target groups with their registered
// targets as backends.
func (p *Provider) listBackendServices(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	pages := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(p.elbv2Client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "elbv2"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe target groups", err)
		}

		for _, tg := range page.TargetGroups {
			resource, err := p.convertTargetGroup(ctx, tg)
			if err != nil {
				return nil, err
			}
			resources = append(resources, resource)
		}
	}

	return resources, nil
}

func (p *Provider) convertTargetGroup(ctx context.Context, tg elbv2types.TargetGroup) (types.Resource, error) {
	backends, err := p.registeredTargets(ctx, aws.ToString(tg.TargetGroupArn))
	if err != nil {
		return types.Resource{}, err
	}

	return types.Resource{
		Kind:      types.KindBackendService,
		ID:        aws.ToString(tg.TargetGroupArn),
		Name:      aws.ToString(tg.TargetGroupName),
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		State:     "active",
		Attributes: map[string]any{
			types.AttrBackends: backends,
			"protocol":         string(tg.Protocol),
			"port":             int64(aws.ToInt32(tg.Port)),
			"vpc_id":           aws.ToString(tg.VpcId),
			"target_type":      string(tg.TargetType),
		},
	}, nil
}

func (p *Provider) registeredTargets(ctx context.Context, targetGroupARN string) ([]string, error) {
	if err := p.throttle(ctx, "elbv2"); err != nil {
		return nil, err
	}
	output, err := p.elbv2Client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(targetGroupARN),
	})
	if err != nil {
		return nil, classify("describe target health", err)
	}

	targets := make([]string, 0, len(output.TargetHealthDescriptions))
	for _, desc := range output.TargetHealthDescriptions {
		if desc.Target == nil {
			continue
		}
		targets = append(targets, aws.ToString(desc.Target.Id))
	}
	return targets, nil
}

// BackendHealth snapshots the reported health of every registered
// target, keyed by target group. The orchestrator captures one snapshot
// per scan, between enumeration and evaluation.
func (p *Provider) BackendHealth(ctx context.Context) (graph.HealthSnapshot, error) {
	snapshot := make(graph.HealthSnapshot)
	pages := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(p.elbv2Client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "elbv2"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe target groups", err)
		}

		for _, tg := range page.TargetGroups {
			arn := aws.ToString(tg.TargetGroupArn)
			if err := p.throttle(ctx, "elbv2"); err != nil {
				return nil, err
			}
			output, err := p.elbv2Client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
				TargetGroupArn: tg.TargetGroupArn,
			})
			if err != nil {
				return nil, classify("describe target health", err)
			}

			for _, desc := range output.TargetHealthDescriptions {
				if desc.Target == nil || desc.TargetHealth == nil {
					continue
				}
				snapshot[arn] = append(snapshot[arn], graph.BackendHealth{
					BackendID: aws.ToString(desc.Target.Id),
					State:     healthStateFor(desc.TargetHealth.State),
				})
			}
		}
	}

	return snapshot, nil
}

// healthStateFor maps ELBv2 target health onto the three states the
// graph rollup understands. Draining, initial and unused targets are
// neither up nor down, so they land on unknown.
func healthStateFor(state elbv2types.TargetHealthStateEnum) graph.HealthState {
	switch state {
	case elbv2types.TargetHealthStateEnumHealthy:
		return graph.HealthHealthy
	case elbv2types.TargetHealthStateEnumUnhealthy:
		return graph.HealthUnhealthy
	default:
		return graph.HealthUnknown
	}
}
