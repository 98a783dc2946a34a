package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/velhola/gleaner/types"
)

// listDatabases enumerates RDS instances. Status strings pass through
// unchanged; "stopped" is the one the rules care about. RDS exposes no
// stop timestamp, so stopped databases age from creation.
func (p *Provider) listDatabases(ctx context.Context) ([]types.Resource, error) {
	var resources []types.Resource
	pages := rds.NewDescribeDBInstancesPaginator(p.rdsClient, &rds.DescribeDBInstancesInput{})

	for pages.HasMorePages() {
		if err := p.throttle(ctx, "rds"); err != nil {
			return nil, err
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("describe rds instances", err)
		}

		for _, db := range page.DBInstances {
			resources = append(resources, p.convertDatabase(db))
		}
	}

	return resources, nil
}

func (p *Provider) convertDatabase(db rdstypes.DBInstance) types.Resource {
	labels := rdsTagLabels(db.TagList)
	id := aws.ToString(db.DBInstanceIdentifier)

	return types.Resource{
		Kind:      types.KindDatabase,
		ID:        id,
		Name:      nameOrID(labels, id),
		Provider:  "aws",
		AccountID: p.accountID,
		Region:    p.region,
		Zone:      aws.ToString(db.AvailabilityZone),
		State:     aws.ToString(db.DBInstanceStatus),
		CreatedAt: safeTime(db.InstanceCreateTime),
		Labels:    labels,
		Attributes: map[string]any{
			types.AttrMachineType: aws.ToString(db.DBInstanceClass),
			types.AttrSizeGB:      int64(aws.ToInt32(db.AllocatedStorage)),
			"engine":              aws.ToString(db.Engine),
			"engine_version":      aws.ToString(db.EngineVersion),
			"multi_az":            aws.ToBool(db.MultiAZ),
		},
	}
}
