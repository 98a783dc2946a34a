package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/velhola/gleaner/metrics"
)

// metricSpec ties an engine metric name to its CloudWatch namespace,
// metric and the dimension that scopes it to one resource.
type metricSpec struct {
	namespace string
	metric    string
	dimension string
}

var cloudWatchMetrics = map[string]metricSpec{
	"cpu_utilization":      {"AWS/EC2", "CPUUtilization", "InstanceId"},
	"bytes_sent":           {"AWS/NATGateway", "BytesOutToDestination", "NatGatewayId"},
	"database_connections": {"AWS/RDS", "DatabaseConnections", "DBInstanceIdentifier"},
	"invocations":          {"AWS/Lambda", "Invocations", "FunctionName"},
}

// cloudWatchSource adapts GetMetricStatistics to the metric source
// contract. CloudWatch pre-aggregates server side, so the requested
// statistic mirrors the reducer: mean asks for Average, max for
// Maximum, sum and rate for Sum. An empty datapoint list comes back as
// no series at all, never as zeros.
type cloudWatchSource struct {
	p *Provider
}

func (s *cloudWatchSource) FetchSeries(ctx context.Context, q metrics.Query, from, to time.Time) ([]metrics.Series, error) {
	spec, ok := cloudWatchMetrics[q.Metric]
	if !ok {
		return nil, fmt.Errorf("metric %s has no cloudwatch mapping", q.Metric)
	}

	stat := cwtypes.StatisticSum
	switch q.Reducer {
	case metrics.ReducerMean:
		stat = cwtypes.StatisticAverage
	case metrics.ReducerMax:
		stat = cwtypes.StatisticMaximum
	}

	period := int32(q.Alignment / time.Second)
	if period <= 0 {
		period = 86400
	}

	if err := s.p.throttle(ctx, "cloudwatch"); err != nil {
		return nil, err
	}
	output, err := s.p.cwClient.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(spec.namespace),
		MetricName: aws.String(spec.metric),
		Dimensions: []cwtypes.Dimension{{
			Name:  aws.String(spec.dimension),
			Value: aws.String(q.ResourceID),
		}},
		StartTime:  aws.Time(from),
		EndTime:    aws.Time(to),
		Period:     aws.Int32(period),
		Statistics: []cwtypes.Statistic{stat},
	})
	if err != nil {
		return nil, classify("get metric statistics", err)
	}

	if len(output.Datapoints) == 0 {
		return nil, nil
	}

	points := make([]metrics.Point, 0, len(output.Datapoints))
	for _, dp := range output.Datapoints {
		points = append(points, metrics.Point{
			At:    aws.ToTime(dp.Timestamp),
			Value: datapointValue(dp, stat),
		})
	}

	return []metrics.Series{{Label: spec.metric, Points: points}}, nil
}

func datapointValue(dp cwtypes.Datapoint, stat cwtypes.Statistic) float64 {
	switch stat {
	case cwtypes.StatisticAverage:
		return aws.ToFloat64(dp.Average)
	case cwtypes.StatisticMaximum:
		return aws.ToFloat64(dp.Maximum)
	default:
		return aws.ToFloat64(dp.Sum)
	}
}
