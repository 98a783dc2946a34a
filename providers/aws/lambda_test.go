package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/types"
)

type fakeLambda struct {
	functions *lambda.ListFunctionsOutput
	tags      map[string]*lambda.ListTagsOutput
}

func (f *fakeLambda) ListFunctions(ctx context.Context, _ *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	if f.functions == nil {
		return &lambda.ListFunctionsOutput{}, nil
	}
	return f.functions, nil
}

func (f *fakeLambda) ListTags(ctx context.Context, params *lambda.ListTagsInput, _ ...func(*lambda.Options)) (*lambda.ListTagsOutput, error) {
	if out, ok := f.tags[aws.ToString(params.Resource)]; ok {
		return out, nil
	}
	return &lambda.ListTagsOutput{}, nil
}

func TestListFunctionsConverts(t *testing.T) {
	arn := "arn:aws:lambda:eu-west-1:123456789012:function:report-gen"
	client := &fakeLambda{
		functions: &lambda.ListFunctionsOutput{
			Functions: []lambdatypes.FunctionConfiguration{{
				FunctionName: aws.String("report-gen"),
				FunctionArn:  aws.String(arn),
				Runtime:      lambdatypes.RuntimePython312,
				MemorySize:   aws.Int32(256),
				LastModified: aws.String("2025-02-10T09:30:00.000+0000"),
			}},
		},
		tags: map[string]*lambda.ListTagsOutput{
			arn: {Tags: map[string]string{"owner": "reporting"}},
		},
	}

	p := &Provider{lambdaClient: client, region: "eu-west-1", accountID: "123456789012"}
	resources, err := p.listFunctions(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, types.KindFunction, r.Kind)
	assert.Equal(t, "report-gen", r.ID, "the name keys metric lookups")
	assert.Equal(t, arn, r.Attributes["arn"])
	assert.Equal(t, "active", r.State)
	assert.Equal(t, "python3.12", r.Attributes["runtime"])
	assert.Equal(t, int64(256), r.Attributes["memory_mb"])
	assert.Equal(t, "reporting", r.Labels["owner"])

	want := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	assert.True(t, r.CreatedAt.Equal(want), "got %v", r.CreatedAt)
}

func TestParseLambdaTime(t *testing.T) {
	want := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	assert.True(t, parseLambdaTime("2025-02-10T09:30:00.000+0000").Equal(want))
	assert.True(t, parseLambdaTime("not a timestamp").IsZero())
	assert.True(t, parseLambdaTime("").IsZero())
}
