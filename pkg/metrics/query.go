package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated metrics for a loop session.
type SessionMetrics struct {
	SessionID       string         `json:"session_id"`
	Iterations      int64          `json:"iterations"`
	Failures        int64          `json:"failures"`
	OutputTokens    int64          `json:"output_tokens"`
	FailurePatterns map[string]int `json:"failure_patterns,omitempty"`
}

// QueryService provides methods to query session metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionMetrics retrieves aggregated iteration, failure, and token
// metrics for a specific session.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID:       sessionID,
		FailurePatterns: make(map[string]int),
	}

	iterQuery := fmt.Sprintf(`sum(autopilot_iterations_total{session_id=%q})`, sessionID)
	iterResult, _, err := q.queryAPI.Query(ctx, iterQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	if vector, ok := iterResult.(model.Vector); ok && len(vector) > 0 {
		metrics.Iterations = int64(vector[0].Value)
	}

	failQuery := fmt.Sprintf(`sum(autopilot_failures_total{session_id=%q})`, sessionID)
	failResult, _, err := q.queryAPI.Query(ctx, failQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	if vector, ok := failResult.(model.Vector); ok && len(vector) > 0 {
		metrics.Failures = int64(vector[0].Value)
	}

	tokenQuery := fmt.Sprintf(`sum(autopilot_generation_tokens_total{session_id=%q})`, sessionID)
	tokenResult, _, err := q.queryAPI.Query(ctx, tokenQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query output tokens: %w", err)
	}
	if vector, ok := tokenResult.(model.Vector); ok && len(vector) > 0 {
		metrics.OutputTokens = int64(vector[0].Value)
	}

	patternQuery := fmt.Sprintf(`sum by (pattern) (autopilot_failures_total{session_id=%q})`, sessionID)
	patternResult, _, err := q.queryAPI.Query(ctx, patternQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query failure patterns: %w", err)
	}
	if vector, ok := patternResult.(model.Vector); ok {
		for _, sample := range vector {
			if pattern, ok := sample.Metric["pattern"]; ok {
				metrics.FailurePatterns[string(pattern)] = int(sample.Value)
			}
		}
	}

	return metrics, nil
}

// AverageIterationDuration returns the mean iteration duration for a session
// over the given window.
func (q *QueryService) AverageIterationDuration(ctx context.Context, sessionID string, window time.Duration) (time.Duration, error) {
	query := fmt.Sprintf(
		`sum(rate(autopilot_iteration_duration_seconds_sum{session_id=%q}[%s])) / sum(rate(autopilot_iteration_duration_seconds_count{session_id=%q}[%s]))`,
		sessionID, model.Duration(window).String(), sessionID, model.Duration(window).String(),
	)
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query iteration duration: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		seconds := float64(vector[0].Value)
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return 0, nil
}
