package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsEmitter publishes business counters to CloudWatch.
type MetricsEmitter struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsEmitter returns an emitter writing into namespace.
func NewMetricsEmitter(client CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records value under name with the given dimensions.
func (m *MetricsEmitter) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{Name: awsString(k), Value: awsString(dims[k])})
	}

	ts := m.nowFunc()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awsString(name),
			Value:      &value,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &ts,
			Dimensions: dimensions,
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}
