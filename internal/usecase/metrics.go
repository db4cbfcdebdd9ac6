package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/repository"
)

// MetricsSummary represents aggregated detection insights.
type MetricsSummary struct {
	TotalRequests      int64            `json:"total_requests"`
	FaceFoundRequests  int64            `json:"face_found_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	FaceFoundRate      float64          `json:"face_found_rate"`
	AverageFaces       float64          `json:"average_faces"`
	AverageLatencyMs   float64          `json:"average_latency_ms"`
	RequestsWonByModel map[string]int64 `json:"requests_won_by_model"`
}

// GetMetricsSummary aggregates detection metrics from persisted logs.
func (uc *VisionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.audit == nil {
		return nil, ErrAuditDisabled
	}

	aggregation, err := uc.audit.AggregateMetrics(ctx)
	if err != nil {
		return nil, logging.NewOperationError("usecase.metrics_summary", "", err)
	}
	counts, err := uc.audit.CountByModel(ctx)
	if err != nil {
		return nil, logging.NewOperationError("usecase.metrics_summary", "", err)
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		FaceFoundRequests:  aggregation.FaceFoundCount,
		FailedRequests:     aggregation.ErrorCount,
		AverageFaces:       aggregation.AverageFaces,
		AverageLatencyMs:   aggregation.AverageLatencyMs,
		RequestsWonByModel: make(map[string]int64, len(counts)),
	}
	for _, c := range counts {
		summary.RequestsWonByModel[c.Model] = c.Count
	}

	if aggregation.TotalCount > 0 {
		summary.FaceFoundRate = float64(aggregation.FaceFoundCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

// GetDetectionLog returns the audit entry written for requestID.
func (uc *VisionUseCase) GetDetectionLog(ctx context.Context, requestID string) (*repository.DetectionLog, error) {
	if uc.audit == nil {
		return nil, ErrAuditDisabled
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, logging.NewOperationError("usecase.detection_log", "", fmt.Errorf("%w: request id is required", ErrInvalidInput))
	}
	entry, err := uc.audit.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, logging.NewOperationError("usecase.detection_log", requestID, err)
	}
	return entry, nil
}

// HealthStatus reports liveness and the active configuration.
type HealthStatus struct {
	Status  string           `json:"status"`
	Mode    string           `json:"mode"`
	Profile string           `json:"profile"`
	Models  []detector.Model `json:"models"`
}

// Health reports the process as alive along with its profile.
func (uc *VisionUseCase) Health() HealthStatus {
	p := uc.Profile()
	mode := "cpu"
	if p.Accelerated() {
		mode = "gpu"
	}
	return HealthStatus{Status: "ok", Mode: mode, Profile: p.Name, Models: append([]detector.Model(nil), p.Models...)}
}
