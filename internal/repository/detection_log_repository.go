package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-vision/internal/retry"
)

// ErrLogNotFound is returned when no log exists for a request ID.
var ErrLogNotFound = errors.New("detection log not found")

// DetectionLog records one processed request. It carries no descriptors.
type DetectionLog struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64" json:"request_id"`
	Operation string    `gorm:"column:operation;size:32;index" json:"operation"`
	Profile   string    `gorm:"column:profile;size:16" json:"profile"`
	Model     string    `gorm:"column:model;size:16" json:"model"`
	Scale     int       `gorm:"column:scale" json:"scale"`
	Faces     int       `gorm:"column:faces" json:"faces"`
	ErrorCode string    `gorm:"column:error_code;size:32" json:"error_code,omitempty"`
	LatencyMs int64     `gorm:"column:latency_ms" json:"latency_ms"`
	SHA1Hash  string    `gorm:"column:sha1_hash;size:40;index" json:"sha1"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the default table name.
func (DetectionLog) TableName() string {
	return "detection_logs"
}

// MetricsAggregation holds totals across all detection logs.
type MetricsAggregation struct {
	TotalCount       int64
	FaceFoundCount   int64
	ErrorCount       int64
	AverageFaces     float64
	AverageLatencyMs float64
}

// ModelCount is the number of requests won by one detector model.
type ModelCount struct {
	Model string
	Count int64
}

// DetectionLogRepository persists detection logs with retries on transient
// database errors.
type DetectionLogRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	retry  retry.Policy
}

// NewDetectionLogRepository creates a new repository instance.
func NewDetectionLogRepository(db *gorm.DB, logger *zap.Logger) *DetectionLogRepository {
	return &DetectionLogRepository{
		db:     db,
		logger: logger.Named("detection_log_repository"),
		retry:  retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (r *DetectionLogRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&DetectionLog{})
	})
}

// SaveLog persists a detection log entry.
func (r *DetectionLogRepository) SaveLog(ctx context.Context, log *DetectionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the log written for a request.
func (r *DetectionLogRepository) FindByRequestID(ctx context.Context, requestID string) (*DetectionLog, error) {
	var log DetectionLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		err := r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLogNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals over all logs.
func (r *DetectionLogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&DetectionLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN faces > 0 THEN 1 ELSE 0 END), 0) AS face_found_count,
				COALESCE(SUM(CASE WHEN error_code <> '' THEN 1 ELSE 0 END), 0) AS error_count,
				COALESCE(AVG(faces), 0) AS average_faces,
				COALESCE(AVG(latency_ms), 0) AS average_latency_ms`).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// CountByModel returns how many successful detections each model produced.
func (r *DetectionLogRepository) CountByModel(ctx context.Context) ([]ModelCount, error) {
	var counts []ModelCount
	err := r.executeWithRetry(ctx, "repository.count_by_model", "", func() error {
		return r.db.WithContext(ctx).
			Model(&DetectionLog{}).
			Select("model, COUNT(*) AS count").
			Where("model <> ''").
			Group("model").
			Order("model").
			Scan(&counts).Error
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *DetectionLogRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	err := r.retry.Do(ctx, r.logger, operation, requestID, fn)
	if err != nil {
		r.logger.Error("database operation failed", zap.String("operation", operation), zap.String("request_id", requestID), zap.Error(err))
	}
	return err
}
