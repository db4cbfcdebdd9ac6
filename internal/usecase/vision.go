package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/descriptor"
	"github.com/example/face-vision/internal/detection"
	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/overlay"
	"github.com/example/face-vision/internal/quality"
	"github.com/example/face-vision/internal/repository"
	"github.com/example/face-vision/internal/retry"
)

// FaceDetector runs the multi-scale detection strategy.
type FaceDetector interface {
	Detect(ctx context.Context, filename string, data []byte) (*detection.Outcome, error)
	Profile() detection.Profile
}

// Renderer writes debug overlays.
type Renderer interface {
	Render(img *imaging.Image, regions []detector.Region, path string) error
}

// AuditLog defines the persistence operations needed by the use case.
type AuditLog interface {
	SaveLog(ctx context.Context, log *repository.DetectionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.DetectionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
	CountByModel(ctx context.Context) ([]repository.ModelCount, error)
}

// Options configures request defaults.
type Options struct {
	DiskRoot     string
	DebugSubdir  string
	MaxPixels    int
	HashCacheTTL time.Duration
}

// DefaultOptions returns the defaults used when a value is not configured.
func DefaultOptions() Options {
	return Options{
		DebugSubdir:  "debug",
		MaxPixels:    imaging.DefaultMaxPixels,
		HashCacheTTL: 24 * time.Hour,
	}
}

// VisionUseCase encapsulates business logic for the vision operations.
type VisionUseCase struct {
	detector FaceDetector
	encoder  detector.Encoder
	renderer Renderer
	audit    AuditLog
	cache    Cache
	opts     Options
	logger   *zap.Logger
	retry    retry.Policy
	now      func() time.Time
}

// NewVisionUseCase constructs a new use case instance. encoder may be nil
// when every detector in the profile encodes during detection. A nil renderer
// disables debug overlays.
func NewVisionUseCase(det FaceDetector, encoder detector.Encoder, renderer Renderer, opts Options, logger *zap.Logger) *VisionUseCase {
	defaults := DefaultOptions()
	if opts.DebugSubdir == "" {
		opts.DebugSubdir = defaults.DebugSubdir
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaults.MaxPixels
	}
	if opts.HashCacheTTL <= 0 {
		opts.HashCacheTTL = defaults.HashCacheTTL
	}
	return &VisionUseCase{
		detector: det,
		encoder:  encoder,
		renderer: renderer,
		opts:     opts,
		logger:   logger.Named("vision_usecase"),
		retry:    retry.DefaultPolicy(),
		now:      time.Now,
	}
}

// WithCache enables the fingerprint cache.
func (uc *VisionUseCase) WithCache(cache Cache) *VisionUseCase {
	uc.cache = cache
	return uc
}

// WithAuditLog enables request auditing and the metrics summary.
func (uc *VisionUseCase) WithAuditLog(audit AuditLog) *VisionUseCase {
	uc.audit = audit
	return uc
}

// Profile returns the active detection profile.
func (uc *VisionUseCase) Profile() detection.Profile {
	return uc.detector.Profile()
}

// EncodeRequest is one uploaded image to detect and encode.
type EncodeRequest struct {
	Filename     string
	Data         []byte
	OriginalPath string
	OriginalDisk string
	DebugSubdir  string
}

// EncodeResult holds per-face data in detection order.
type EncodeResult struct {
	RequestID      string
	Encodings      []detector.Descriptor
	Locations      []detector.Region
	Qualities      []quality.Score
	DebugImagePath string
	DebugError     string
	Scale          int
	Model          detector.Model
}

// Encode detects faces, encodes them, optionally scores them and writes the
// debug overlay. A failed overlay does not fail the request.
func (uc *VisionUseCase) Encode(ctx context.Context, req EncodeRequest) (*EncodeResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.encode", requestID)
	start := uc.now()

	result, err := uc.encode(ctx, requestID, req, opLogger)

	entry := &repository.DetectionLog{
		RequestID: requestID,
		Operation: "encode",
		Profile:   uc.Profile().Name,
		SHA1Hash:  sha1Hex(req.Data),
		LatencyMs: uc.now().Sub(start).Milliseconds(),
		CreatedAt: start.UTC(),
	}
	if err != nil {
		entry.ErrorCode = string(Classify(err))
		if entry.ErrorCode == string(CodeInternal) {
			opLogger.Error("encode failed", zap.Error(err))
		} else {
			opLogger.Info("encode rejected", zap.String("code", entry.ErrorCode), zap.Error(err))
		}
	} else {
		entry.Model = string(result.Model)
		entry.Scale = result.Scale
		entry.Faces = len(result.Locations)
		opLogger.Info("encode finished",
			zap.Int("faces", entry.Faces),
			zap.Int("scale", entry.Scale),
			zap.String("model", entry.Model),
			zap.Int64("latency_ms", entry.LatencyMs),
		)
	}
	uc.saveAudit(ctx, entry, opLogger)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *VisionUseCase) encode(ctx context.Context, requestID string, req EncodeRequest, opLogger *zap.Logger) (*EncodeResult, error) {
	outcome, err := uc.detector.Detect(ctx, req.Filename, req.Data)
	if err != nil {
		return nil, logging.NewOperationError("usecase.detect", requestID, err)
	}

	descriptors := outcome.Descriptors
	if outcome.Found() && descriptors == nil {
		if uc.encoder == nil {
			return nil, logging.NewOperationError("usecase.encode_faces", requestID, errors.New("no descriptor encoder configured"))
		}
		descriptors, err = uc.encoder.Encode(outcome.Image, outcome.Regions)
		if err != nil {
			return nil, logging.NewOperationError("usecase.encode_faces", requestID, err)
		}
		if len(descriptors) != len(outcome.Regions) {
			return nil, logging.NewOperationError("usecase.encode_faces", requestID,
				fmt.Errorf("encoder returned %d descriptors for %d faces", len(descriptors), len(outcome.Regions)))
		}
	}

	result := &EncodeResult{
		RequestID: requestID,
		Encodings: make([]detector.Descriptor, 0, len(outcome.Regions)),
		Locations: make([]detector.Region, 0, len(outcome.Regions)),
		Scale:     outcome.Scale,
		Model:     outcome.Model,
	}
	result.Encodings = append(result.Encodings, descriptors...)
	result.Locations = append(result.Locations, outcome.Regions...)

	if uc.Profile().QualityScoring {
		result.Qualities = quality.EvaluateAll(outcome.Image, outcome.Regions)
	}

	if uc.renderer == nil {
		return result, nil
	}
	path, err := uc.renderDebug(outcome, req)
	if err != nil {
		opLogger.Warn("debug overlay failed", zap.Error(err))
		result.DebugError = err.Error()
	} else {
		result.DebugImagePath = path
	}
	return result, nil
}

func (uc *VisionUseCase) renderDebug(outcome *detection.Outcome, req EncodeRequest) (string, error) {
	root := req.OriginalDisk
	if root == "" {
		root = uc.opts.DiskRoot
	}
	subdir := req.DebugSubdir
	if subdir == "" {
		subdir = uc.opts.DebugSubdir
	}
	path, err := overlay.DebugPath(req.OriginalPath, root, subdir)
	if err != nil {
		return "", err
	}
	if err := uc.renderer.Render(outcome.Image, outcome.Regions, path); err != nil {
		return "", err
	}
	return path, nil
}

// CompareDescriptors returns the Euclidean distance from ref to every
// candidate, in order.
func (uc *VisionUseCase) CompareDescriptors(ctx context.Context, ref []float32, candidates [][]float32) ([]float64, error) {
	distances, err := descriptor.Distances(ctx, ref, candidates)
	if err != nil {
		return nil, logging.NewOperationError("usecase.compare_descriptors", "", err)
	}
	return distances, nil
}

func (uc *VisionUseCase) saveAudit(ctx context.Context, entry *repository.DetectionLog, opLogger *zap.Logger) {
	if uc.audit == nil {
		return
	}
	if err := uc.audit.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		opLogger.Warn("failed to persist detection log", zap.Error(err))
	}
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
