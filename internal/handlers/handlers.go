package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/detection"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/phash"
	"github.com/example/face-vision/internal/repository"
	"github.com/example/face-vision/internal/usecase"
)

// MaxUploadSize is the default cap on a request body.
const MaxUploadSize = 32 << 20

// VisionService is the use case surface served over HTTP.
type VisionService interface {
	Profile() detection.Profile
	Encode(ctx context.Context, req usecase.EncodeRequest) (*usecase.EncodeResult, error)
	CompareDescriptors(ctx context.Context, ref []float32, candidates [][]float32) ([]float64, error)
	HashImage(ctx context.Context, file usecase.ImageFile, size int) (*usecase.HashResult, error)
	CompareImages(ctx context.Context, first, second usecase.ImageFile, size int) (*usecase.ImageComparison, error)
	Health() usecase.HealthStatus
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	GetDetectionLog(ctx context.Context, requestID string) (*repository.DetectionLog, error)
}

// Handler serves the vision routes.
type Handler struct {
	uc             VisionService
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler builds a handler. A non-positive limit uses MaxUploadSize.
func NewHandler(uc VisionService, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = MaxUploadSize
	}
	return &Handler{uc: uc, logger: logger.Named("handlers"), maxUploadBytes: maxUploadBytes}
}

type compareRequest struct {
	Encoding   []float32   `json:"encoding"`
	Candidates [][]float32 `json:"candidates"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. /health is
// always public; the remaining routes run behind protected.
func RegisterRoutes(router *gin.Engine, h *Handler, protected ...gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.uc.Health())
	})

	api := router.Group("/", protected...)
	api.POST("/encode", h.encode)
	api.POST("/compare", h.compare)
	api.GET("/metrics/summary", h.metricsSummary)
	api.GET("/detections/:request_id", h.detectionLog)

	if h.uc.Profile().PerceptualHash {
		api.POST("/hash", h.hash)
		api.POST("/compare-images", h.compareImages)
	}
}

func (h *Handler) encode(c *gin.Context) {
	form, ok := h.parseMultipart(c)
	if !ok {
		return
	}
	defer h.cleanup(form)

	originalPath := formValue(form, "original_path")
	if originalPath == "" {
		h.fail(c, fmt.Errorf("%w: original_path is required", usecase.ErrInvalidInput))
		return
	}
	file, err := readFormFile(form, "image")
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.uc.Encode(c.Request.Context(), usecase.EncodeRequest{
		Filename:     file.Filename,
		Data:         file.Data,
		OriginalPath: originalPath,
		OriginalDisk: formValue(form, "original_disk"),
		DebugSubdir:  formValue(form, "image_debug_subdir"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	locations := make([][4]int, len(res.Locations))
	for i, r := range res.Locations {
		locations[i] = r.CSS()
	}
	body := gin.H{
		"request_id":       res.RequestID,
		"encodings":        res.Encodings,
		"locations":        locations,
		"debug_image_path": nil,
		"scale":            nil,
		"model":            nil,
	}
	if h.uc.Profile().QualityScoring {
		body["qualities"] = res.Qualities
	}
	if res.DebugImagePath != "" {
		body["debug_image_path"] = res.DebugImagePath
	}
	if res.DebugError != "" {
		body["debug_error"] = res.DebugError
	}
	if res.Scale > 0 {
		body["scale"] = res.Scale
		body["model"] = res.Model
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) compare(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			tooLarge(c)
			return
		}
		h.fail(c, fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err))
		return
	}

	distances, err := h.uc.CompareDescriptors(c.Request.Context(), req.Encoding, req.Candidates)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distances": distances})
}

func (h *Handler) hash(c *gin.Context) {
	size, err := hashSize(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	form, ok := h.parseMultipart(c)
	if !ok {
		return
	}
	defer h.cleanup(form)

	file, err := readFormFile(form, "file")
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.uc.HashImage(c.Request.Context(), file, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) compareImages(c *gin.Context) {
	size, err := hashSize(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	form, ok := h.parseMultipart(c)
	if !ok {
		return
	}
	defer h.cleanup(form)

	first, err := readFormFile(form, "file1")
	if err != nil {
		h.fail(c, err)
		return
	}
	second, err := readFormFile(form, "file2")
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.uc.CompareImages(c.Request.Context(), first, second, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) metricsSummary(c *gin.Context) {
	summary, err := h.uc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) detectionLog(c *gin.Context) {
	entry, err := h.uc.GetDetectionLog(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// parseMultipart reads the multipart body within the upload limit. On
// failure it writes the response and returns false.
func (h *Handler) parseMultipart(c *gin.Context) (*multipart.Form, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		if isBodyTooLarge(err) {
			tooLarge(c)
			return nil, false
		}
		h.fail(c, fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err))
		return nil, false
	}
	return form, true
}

// cleanup removes temporary files staged for the form.
func (h *Handler) cleanup(form *multipart.Form) {
	if err := form.RemoveAll(); err != nil {
		h.logger.Warn("failed to remove staged upload", zap.Error(err))
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrAuditDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "audit_disabled"})
		return
	}
	code := usecase.Classify(err)
	status := http.StatusBadRequest
	switch code {
	case usecase.CodeInternal:
		status = http.StatusInternalServerError
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("operation", logging.OperationOf(err)),
			zap.Error(err),
		)
	case usecase.CodeFeatureDisabled, usecase.CodeNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": usecase.PublicMessage(err), "code": code})
}

func tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "code": usecase.CodeInvalidInput})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func hashSize(c *gin.Context) (int, error) {
	raw := c.Query("hash_size")
	if raw == "" {
		return phash.DefaultSize, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: hash_size must be an integer", usecase.ErrInvalidInput)
	}
	return size, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func readFormFile(form *multipart.Form, field string) (usecase.ImageFile, error) {
	files := form.File[field]
	if len(files) == 0 {
		return usecase.ImageFile{}, fmt.Errorf("%w: %s file is required", usecase.ErrInvalidInput, field)
	}
	header := files[0]
	src, err := header.Open()
	if err != nil {
		return usecase.ImageFile{}, fmt.Errorf("open %s: %w", field, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return usecase.ImageFile{}, fmt.Errorf("read %s: %w", field, err)
	}
	return usecase.ImageFile{Filename: header.Filename, Data: data}, nil
}
