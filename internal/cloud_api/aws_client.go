package cloud_api

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/config"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

// DescribeClusters accepts at most 100 clusters per call.
const describeClustersBatch = 100

type ec2API interface {
	ec2.DescribeInstancesAPIClient
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

type rdsAPI interface {
	rds.DescribeDBInstancesAPIClient
	StartDBInstance(ctx context.Context, params *rds.StartDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error)
	StopDBInstance(ctx context.Context, params *rds.StopDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error)
}

type ecsAPI interface {
	ecs.ListClustersAPIClient
	ecs.ListServicesAPIClient
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

type autoScalingAPI interface {
	autoscaling.DescribeAutoScalingGroupsAPIClient
	UpdateAutoScalingGroup(ctx context.Context, params *autoscaling.UpdateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error)
}

// AWSClient implements Client on top of the AWS SDK.
type AWSClient struct {
	ec2         ec2API
	rds         rdsAPI
	ecs         ecsAPI
	autoscaling autoScalingAPI
}

var _ Client = (*AWSClient)(nil)

// NewAWSClient loads the default AWS configuration and creates the service clients.
// The SDK retryer is disabled because the HTTP transport already retries.
func NewAWSClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*AWSClient, error) {
	httpClient := NewHTTPClient(cfg.HTTPRetryMax, cfg.HTTPTimeout, log)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient.StandardClient()),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}

	return &AWSClient{
		ec2:         ec2.NewFromConfig(awsCfg),
		rds:         rds.NewFromConfig(awsCfg),
		ecs:         ecs.NewFromConfig(awsCfg),
		autoscaling: autoscaling.NewFromConfig(awsCfg),
	}, nil
}

func (c *AWSClient) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError("DescribeInstances", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				state := ""
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				instances = append(instances, Instance{ID: aws.ToString(inst.InstanceId), State: state})
			}
		}
	}
	return instances, nil
}

func (c *AWSClient) StartInstance(ctx context.Context, id string) error {
	_, err := c.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return wrapAWSError("StartInstances", err)
	}
	return nil
}

func (c *AWSClient) StopInstance(ctx context.Context, id string) error {
	_, err := c.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return wrapAWSError("StopInstances", err)
	}
	return nil
}

func (c *AWSClient) ListDBInstances(ctx context.Context) ([]DBInstance, error) {
	var instances []DBInstance
	paginator := rds.NewDescribeDBInstancesPaginator(c.rds, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError("DescribeDBInstances", err)
		}
		for _, db := range page.DBInstances {
			instances = append(instances, DBInstance{
				ID:     aws.ToString(db.DBInstanceIdentifier),
				Status: aws.ToString(db.DBInstanceStatus),
			})
		}
	}
	return instances, nil
}

func (c *AWSClient) StartDBInstance(ctx context.Context, id string) error {
	_, err := c.rds.StartDBInstance(ctx, &rds.StartDBInstanceInput{DBInstanceIdentifier: aws.String(id)})
	if err != nil {
		return wrapAWSError("StartDBInstance", err)
	}
	return nil
}

func (c *AWSClient) StopDBInstance(ctx context.Context, id string) error {
	_, err := c.rds.StopDBInstance(ctx, &rds.StopDBInstanceInput{DBInstanceIdentifier: aws.String(id)})
	if err != nil {
		return wrapAWSError("StopDBInstance", err)
	}
	return nil
}

// ListClusters lists every cluster and resolves its name and status.
func (c *AWSClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	var arns []string
	paginator := ecs.NewListClustersPaginator(c.ecs, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError("ListClusters", err)
		}
		arns = append(arns, page.ClusterArns...)
	}

	clusters := make([]Cluster, 0, len(arns))
	for start := 0; start < len(arns); start += describeClustersBatch {
		end := min(start+describeClustersBatch, len(arns))
		out, err := c.ecs.DescribeClusters(ctx, &ecs.DescribeClustersInput{Clusters: arns[start:end]})
		if err != nil {
			return nil, wrapAWSError("DescribeClusters", err)
		}
		for _, cl := range out.Clusters {
			clusters = append(clusters, Cluster{
				ARN:    aws.ToString(cl.ClusterArn),
				Name:   aws.ToString(cl.ClusterName),
				Status: aws.ToString(cl.Status),
			})
		}
	}
	return clusters, nil
}

func (c *AWSClient) ListServices(ctx context.Context, cluster string) ([]string, error) {
	var services []string
	paginator := ecs.NewListServicesPaginator(c.ecs, &ecs.ListServicesInput{Cluster: aws.String(cluster)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError("ListServices", err)
		}
		services = append(services, page.ServiceArns...)
	}
	return services, nil
}

func (c *AWSClient) UpdateServiceDesiredCount(ctx context.Context, cluster, service string, desiredCount int32) error {
	_, err := c.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(desiredCount),
	})
	if err != nil {
		return wrapAWSError("UpdateService", err)
	}
	return nil
}

func (c *AWSClient) ListAutoScalingGroups(ctx context.Context) ([]AutoScalingGroup, error) {
	var groups []AutoScalingGroup
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(c.autoscaling, &autoscaling.DescribeAutoScalingGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError("DescribeAutoScalingGroups", err)
		}
		for _, g := range page.AutoScalingGroups {
			groups = append(groups, AutoScalingGroup{
				Name: aws.ToString(g.AutoScalingGroupName),
				Capacity: resource.Capacity{
					Min:     aws.ToInt32(g.MinSize),
					Max:     aws.ToInt32(g.MaxSize),
					Desired: aws.ToInt32(g.DesiredCapacity),
				},
			})
		}
	}
	return groups, nil
}

func (c *AWSClient) UpdateAutoScalingGroup(ctx context.Context, name string, capacity resource.Capacity) error {
	_, err := c.autoscaling.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(name),
		MinSize:              aws.Int32(capacity.Min),
		MaxSize:              aws.Int32(capacity.Max),
		DesiredCapacity:      aws.Int32(capacity.Desired),
	})
	if err != nil {
		return wrapAWSError("UpdateAutoScalingGroup", err)
	}
	return nil
}

// wrapAWSError converts an SDK error into a ProviderError keyed by the API error code.
func wrapAWSError(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Operation: operation,
			Code:      apiErr.ErrorCode(),
			Message:   apiErr.ErrorMessage(),
			Err:       err,
		}
	}
	return &ProviderError{Operation: operation, Message: err.Error(), Err: err}
}
