// Package services - services/metrics_service.go
package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"playjosh/logger"
)

// DecisionRecorder counts guard decisions. Implementations must never block
// or fail the request being recorded.
type DecisionRecorder interface {
	RecordDecision(category, outcome string)
}

// NoopRecorder discards every decision.
type NoopRecorder struct{}

// RecordDecision does nothing.
func (NoopRecorder) RecordDecision(string, string) {}

type decisionKey struct {
	category string
	outcome  string
}

// CloudWatchRecorder aggregates decision counts in memory and publishes them
// as the GuardDecisions metric on Flush.
type CloudWatchRecorder struct {
	client    cloudwatchiface.CloudWatchAPI
	namespace string

	mu     sync.Mutex
	counts map[decisionKey]float64
}

// NewCloudWatchRecorder reuses a single CloudWatch client for all flushes.
func NewCloudWatchRecorder(client cloudwatchiface.CloudWatchAPI, namespace string) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		counts:    make(map[decisionKey]float64),
	}
}

// RecordDecision increments the counter for (category, outcome).
func (r *CloudWatchRecorder) RecordDecision(category, outcome string) {
	r.mu.Lock()
	r.counts[decisionKey{category, outcome}]++
	r.mu.Unlock()
}

// Flush pushes the accumulated counters and resets them. Counters are kept
// when the push fails so the next flush retries them.
func (r *CloudWatchRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.counts
	r.counts = make(map[decisionKey]float64)
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	keys := make([]decisionKey, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].outcome < keys[j].outcome
	})

	now := time.Now()
	data := make([]*cloudwatch.MetricDatum, 0, len(keys))
	for _, k := range keys {
		data = append(data, &cloudwatch.MetricDatum{
			MetricName: aws.String("GuardDecisions"),
			Dimensions: []*cloudwatch.Dimension{
				{Name: aws.String("Category"), Value: aws.String(k.category)},
				{Name: aws.String("Outcome"), Value: aws.String(k.outcome)},
			},
			Timestamp: aws.Time(now),
			Value:     aws.Float64(pending[k]),
			Unit:      aws.String(cloudwatch.StandardUnitCount),
		})
	}

	_, err := r.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		logger.Error().Err(err).Int("series", len(data)).Msg("[CloudWatchRecorder] PutMetricData failed")
		r.mu.Lock()
		for k, v := range pending {
			r.counts[k] += v
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *CloudWatchRecorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = r.Flush(ctx)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.Flush(shutdownCtx)
			return nil
		}
	}
}
