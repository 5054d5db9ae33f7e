package metrics

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"plansync/internal/reconcile"
	"plansync/internal/types"
)

// Metric names emitted to CloudWatch.
const (
	MetricCountDrift      = "PropertyCountDrift"
	MetricInconsistencies = "InconsistentUsers"
	MetricUsersProcessed  = "SweepUsersProcessed"
	MetricSyncErrors      = "SweepSyncErrors"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDriftMetrics publishes reconciliation drift to CloudWatch.
// Publish failures are logged and swallowed: metrics never fail a sweep.
//
// Metrics emitted:
//   - PropertyCountDrift: sum of absolute stored-vs-actual differences per report
//   - InconsistentUsers: users with a drifted counter per report
//   - SweepUsersProcessed / SweepSyncErrors: per SyncAll outcome
type CloudWatchDriftMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ reconcile.DriftMetrics = (*CloudWatchDriftMetrics)(nil)

// NewCloudWatchDriftMetrics creates a publisher for the given namespace.
func NewCloudWatchDriftMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchDriftMetrics {
	return &CloudWatchDriftMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchDriftMetrics) RecordDrift(ctx context.Context, inconsistencies, totalDrift int) {
	ReportInconsistencies.Set(float64(inconsistencies))

	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricCountDrift),
			Value:      aws.Float64(float64(totalDrift)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String(MetricInconsistencies),
			Value:      aws.Float64(float64(inconsistencies)),
			Unit:       cwtypes.StandardUnitCount,
		},
	})
}

func (m *CloudWatchDriftMetrics) RecordSweep(ctx context.Context, processed, failed int) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricUsersProcessed),
			Value:      aws.Float64(float64(processed)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String(MetricSyncErrors),
			Value:      aws.Float64(float64(failed)),
			Unit:       cwtypes.StandardUnitCount,
		},
	})
}

func (m *CloudWatchDriftMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish drift metrics", "error", err.Error())
	}
}
