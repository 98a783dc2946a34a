package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/velhola/gleaner/types"
)

// Lambda reports timestamps as ISO 8601 strings with a numeric zone.
const lambdaTimeLayout = "2006-01-02T15:04:05.000-0700"

// listFunctions enumerates Lambda functions. The list API carries only
// a last modified timestamp, so a function nobody touches ages from
// its last deploy, which is the age the idle rules want anyway.
func (p *Provider) listFunctions(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	pages := lambda.NewListFunctionsPaginator(p.lambdaClient, &lambda.ListFunctionsInput{})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "lambda"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("list lambda functions", err)
		}

		for _, function := range page.Functions {
			resources = append(resources, p.convertFunction(ctx, function))
		}
	}

	return resources, nil
}

func (p *Provider) convertFunction(ctx context.Context, function lambdatypes.FunctionConfiguration) types.Resource {
	state := string(function.State)
	if state == "" {
		state = "active"
	}

	arn := aws.ToString(function.FunctionArn)
	name := aws.ToString(function.FunctionName)

	// The function name keys metric lookups, so it doubles as the id.
	return types.Resource{
		Kind:      types.KindFunction,
		ID:        name,
		Name:      name,
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		State:     state,
		CreatedAt: parseLambdaTime(aws.ToString(function.LastModified)),
		Labels:    p.functionLabels(ctx, arn),
		Attributes: map[string]any{
			"arn":       arn,
			"runtime":   string(function.Runtime),
			"memory_mb": int64(aws.ToInt32(function.MemorySize)),
		},
	}
}

// functionLabels fetches tags best effort; an unreadable tag set never
// blocks enumeration.
func (p *Provider) functionLabels(ctx context.Context, arn string) map[string]string {
	if err := p.throttle(ctx, "lambda"); err != nil {
		return nil
	}
	output, err := p.lambdaClient.ListTags(ctx, &lambda.ListTagsInput{
		Resource: aws.String(arn),
	})
	if err != nil || len(output.Tags) == 0 {
		return nil
	}
	return output.Tags
}

func parseLambdaTime(value string) time.Time {
	ts, err := time.Parse(lambdaTimeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
