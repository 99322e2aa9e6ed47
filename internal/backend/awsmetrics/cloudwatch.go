package awsmetrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"infrasight/internal/models"
)

const (
	cloudWatchWindow = 10 * time.Minute
	cloudWatchPeriod = 300
)

// MetricStatisticsAPI is the part of the CloudWatch client the source uses.
type MetricStatisticsAPI interface {
	GetMetricStatistics(ctx context.Context, in *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatch reads one EC2 instance's CPU utilization and disk read ops.
type CloudWatch struct {
	api        MetricStatisticsAPI
	instanceID string
	now        func() time.Time
}

func NewCloudWatch(api MetricStatisticsAPI, instanceID string) *CloudWatch {
	return &CloudWatch{api: api, instanceID: instanceID, now: time.Now}
}

// NewCloudWatchFromEnv builds a client from the default AWS credential chain.
func NewCloudWatchFromEnv(ctx context.Context, region, instanceID string) (*CloudWatch, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewCloudWatch(cloudwatch.NewFromConfig(cfg), instanceID), nil
}

func (c *CloudWatch) Metrics(ctx context.Context) (models.Metrics, error) {
	cpu, err := c.latest(ctx, "CPUUtilization", types.StatisticAverage)
	if err != nil {
		return models.Metrics{}, err
	}
	readOps, err := c.latest(ctx, "DiskReadOps", types.StatisticSum)
	if err != nil {
		return models.Metrics{}, err
	}
	return models.Metrics{CPU: cpu, Mem: PlaceholderMem, Disk: readOps}, nil
}

// latest returns the newest datapoint in the window, or 0 when there is none.
func (c *CloudWatch) latest(ctx context.Context, metric string, stat types.Statistic) (float64, error) {
	end := c.now().UTC()
	out, err := c.api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String(metric),
		Dimensions: []types.Dimension{{Name: aws.String("InstanceId"), Value: aws.String(c.instanceID)}},
		StartTime:  aws.Time(end.Add(-cloudWatchWindow)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(cloudWatchPeriod),
		Statistics: []types.Statistic{stat},
	})
	if err != nil {
		return 0, fmt.Errorf("cloudwatch %s: %w", metric, err)
	}

	var newest *types.Datapoint
	for i := range out.Datapoints {
		dp := &out.Datapoints[i]
		if newest == nil || aws.ToTime(dp.Timestamp).After(aws.ToTime(newest.Timestamp)) {
			newest = dp
		}
	}
	if newest == nil {
		return 0, nil
	}
	v := aws.ToFloat64(newest.Average)
	if stat == types.StatisticSum {
		v = aws.ToFloat64(newest.Sum)
	}
	return math.Round(v*100) / 100, nil
}
