package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/detection"
	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/repository"
	"github.com/example/face-vision/internal/retry"
)

type stubDetector struct {
	profile detection.Profile
	outcome *detection.Outcome
	err     error
	calls   int
}

func (s *stubDetector) Detect(ctx context.Context, filename string, data []byte) (*detection.Outcome, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func (s *stubDetector) Profile() detection.Profile { return s.profile }

type stubEncoder struct {
	descriptors []detector.Descriptor
	err         error
	calls       int
}

func (s *stubEncoder) Encode(img *imaging.Image, regions []detector.Region) ([]detector.Descriptor, error) {
	s.calls++
	return s.descriptors, s.err
}

type stubRenderer struct {
	paths   []string
	regions [][]detector.Region
	err     error
}

func (s *stubRenderer) Render(img *imaging.Image, regions []detector.Region, path string) error {
	s.paths = append(s.paths, path)
	s.regions = append(s.regions, regions)
	return s.err
}

type stubAudit struct {
	saved   []*repository.DetectionLog
	saveErr error
	found   *repository.DetectionLog
	findErr error
	lookups []string
	agg     *repository.MetricsAggregation
	counts  []repository.ModelCount
	aggErr  error
}

func (s *stubAudit) SaveLog(ctx context.Context, log *repository.DetectionLog) error {
	s.saved = append(s.saved, log)
	return s.saveErr
}

func (s *stubAudit) FindByRequestID(ctx context.Context, requestID string) (*repository.DetectionLog, error) {
	s.lookups = append(s.lookups, requestID)
	return s.found, s.findErr
}

func (s *stubAudit) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	return s.agg, s.aggErr
}

func (s *stubAudit) CountByModel(ctx context.Context) ([]repository.ModelCount, error) {
	return s.counts, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []interface{}
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func testImage(t *testing.T, w, h int) *imaging.Image {
	t.Helper()
	img, err := imaging.Normalize(image.NewRGBA(image.Rect(0, 0, w, h)))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	return img
}

func descriptorOf(v float32) detector.Descriptor {
	d := make(detector.Descriptor, detector.DescriptorSize)
	for i := range d {
		d[i] = v
	}
	return d
}

func newTestUseCase(det *stubDetector, enc detector.Encoder, renderer Renderer) *VisionUseCase {
	uc := NewVisionUseCase(det, enc, renderer, Options{DiskRoot: "/mnt/photos"}, zap.NewNop())
	uc.retry = retry.Policy{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return uc
}

func oneFaceOutcome(t *testing.T, withDescriptor bool) *detection.Outcome {
	out := &detection.Outcome{
		Regions: []detector.Region{{Top: 10, Right: 110, Bottom: 110, Left: 10}},
		Image:   testImage(t, 200, 150),
		Scale:   1600,
		Model:   detector.ModelCNN,
	}
	if withDescriptor {
		out.Descriptors = []detector.Descriptor{descriptorOf(0.1)}
	}
	return out
}

func TestEncodeSingleFace(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	renderer := &stubRenderer{}
	audit := &stubAudit{}
	uc := newTestUseCase(det, nil, renderer).WithAuditLog(audit)

	res, err := uc.Encode(context.Background(), EncodeRequest{
		Filename:     "img.jpg",
		Data:         []byte("jpeg"),
		OriginalPath: "/mnt/photos/2023/img.jpg",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(res.Encodings) != 1 || len(res.Encodings[0]) != detector.DescriptorSize {
		t.Fatalf("expected one 128-float encoding, got %d", len(res.Encodings))
	}
	if len(res.Qualities) != 1 || res.Qualities[0].Total < 0 || res.Qualities[0].Total > 100 {
		t.Fatalf("expected one quality score in range, got %+v", res.Qualities)
	}
	if res.DebugImagePath != "/mnt/photos/2023/debug/debug_img.jpg" || res.DebugError != "" {
		t.Fatalf("unexpected debug path %q (%s)", res.DebugImagePath, res.DebugError)
	}
	if res.Scale != 1600 || res.Model != detector.ModelCNN || res.RequestID == "" {
		t.Fatalf("unexpected metadata %+v", res)
	}
	if len(audit.saved) != 1 || audit.saved[0].Faces != 1 || audit.saved[0].Model != "cnn" || audit.saved[0].ErrorCode != "" {
		t.Fatalf("unexpected audit entry %+v", audit.saved)
	}
	if audit.saved[0].RequestID != res.RequestID {
		t.Fatal("audit entry should carry the request id")
	}
}

func TestEncodeUsesEncoderWhenDetectionHasNoDescriptors(t *testing.T) {
	det := &stubDetector{profile: detection.CPUProfile(), outcome: oneFaceOutcome(t, false)}
	enc := &stubEncoder{descriptors: []detector.Descriptor{descriptorOf(0.2)}}
	uc := newTestUseCase(det, enc, &stubRenderer{})

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.png", Data: []byte("x"), OriginalPath: "/mnt/photos/a.png"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if enc.calls != 1 || res.Encodings[0][0] != 0.2 {
		t.Fatalf("expected encoder output, calls=%d", enc.calls)
	}
}

func TestEncodeEncodesCascadeOutcome(t *testing.T) {
	outcome := oneFaceOutcome(t, false)
	outcome.Model = detector.ModelPico
	outcome.Scale = 1200
	profile := detection.Profile{Name: "edge", Scales: []int{1200}, Models: []detector.Model{detector.ModelPico, detector.ModelHOG}}
	det := &stubDetector{profile: profile, outcome: outcome}
	enc := &stubEncoder{descriptors: []detector.Descriptor{descriptorOf(0.3)}}
	audit := &stubAudit{}
	uc := newTestUseCase(det, enc, &stubRenderer{}).WithAuditLog(audit)

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if enc.calls != 1 || len(res.Encodings) != 1 || res.Encodings[0][0] != 0.3 {
		t.Fatalf("expected the encoder descriptor, calls=%d", enc.calls)
	}
	if res.Model != detector.ModelPico || len(audit.saved) != 1 || audit.saved[0].Model != "pico" {
		t.Fatalf("unexpected model attribution %q %+v", res.Model, audit.saved)
	}
}

func TestEncodeFailsWhenEncoderMissesFaces(t *testing.T) {
	det := &stubDetector{profile: detection.CPUProfile(), outcome: oneFaceOutcome(t, false)}
	uc := newTestUseCase(det, &stubEncoder{}, &stubRenderer{})

	_, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.png", Data: []byte("x"), OriginalPath: "/mnt/photos/a.png"})
	if Classify(err) != CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestEncodeZeroFacesIsSuccess(t *testing.T) {
	det := &stubDetector{
		profile: detection.CPUProfile(),
		outcome: &detection.Outcome{Image: testImage(t, 64, 64)},
	}
	renderer := &stubRenderer{}
	uc := newTestUseCase(det, &stubEncoder{}, renderer)

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if err != nil {
		t.Fatalf("zero faces must succeed, got %v", err)
	}
	if res.Encodings == nil || len(res.Encodings) != 0 || res.Locations == nil || len(res.Locations) != 0 {
		t.Fatalf("expected empty non-nil lists, got %+v", res)
	}
	if len(res.Qualities) != 0 {
		t.Fatalf("expected no qualities, got %+v", res.Qualities)
	}
	if len(renderer.paths) != 1 || len(renderer.regions[0]) != 0 {
		t.Fatal("debug image should still be rendered")
	}
	if res.Scale != 0 || res.Model != "" {
		t.Fatalf("no winning scale expected, got %d/%s", res.Scale, res.Model)
	}
}

func TestEncodeDegradesWhenDebugRenderFails(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	uc := newTestUseCase(det, nil, &stubRenderer{err: errors.New("disk full")})

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if err != nil {
		t.Fatalf("render failure must not fail the request: %v", err)
	}
	if res.DebugImagePath != "" || res.DebugError == "" {
		t.Fatalf("expected degraded debug fields, got %q / %q", res.DebugImagePath, res.DebugError)
	}
	if len(res.Encodings) != 1 {
		t.Fatal("descriptors must still be returned")
	}
}

func TestEncodeWithoutRendererSkipsDebugImage(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	uc := newTestUseCase(det, nil, nil)

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res.DebugImagePath != "" || res.DebugError != "" {
		t.Fatalf("expected no debug output, got path=%q error=%q", res.DebugImagePath, res.DebugError)
	}
}

func TestEncodeRejectsDebugPathOutsideRoot(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	renderer := &stubRenderer{}
	uc := newTestUseCase(det, nil, renderer)

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/etc/a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DebugError == "" || len(renderer.paths) != 0 {
		t.Fatal("escaping path must not be rendered")
	}
}

func TestEncodeUsesRequestDiskAndSubdir(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	renderer := &stubRenderer{}
	uc := newTestUseCase(det, nil, renderer)

	res, err := uc.Encode(context.Background(), EncodeRequest{
		Filename:     "a.jpg",
		Data:         []byte("x"),
		OriginalPath: "/srv/disk2/x/a.jpg",
		OriginalDisk: "/srv/disk2",
		DebugSubdir:  "faces",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DebugImagePath != "/srv/disk2/x/faces/debug_a.jpg" {
		t.Fatalf("unexpected debug path %q", res.DebugImagePath)
	}
}

func TestEncodeReportsResourceExhaustion(t *testing.T) {
	det := &stubDetector{
		profile: detection.GPUProfile(),
		err:     fmt.Errorf("scale 1600, model cnn: %w", detector.ErrResourceExhausted),
	}
	audit := &stubAudit{}
	uc := newTestUseCase(det, nil, &stubRenderer{}).WithAuditLog(audit)

	_, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if Classify(err) != CodeResourceExhausted {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.detect" {
		t.Fatalf("expected OperationError from detect, got %T", err)
	}
	if len(audit.saved) != 1 || audit.saved[0].ErrorCode != string(CodeResourceExhausted) {
		t.Fatalf("failure should be audited, got %+v", audit.saved)
	}
}

func TestEncodeIgnoresAuditFailure(t *testing.T) {
	det := &stubDetector{profile: detection.GPUProfile(), outcome: oneFaceOutcome(t, true)}
	uc := newTestUseCase(det, nil, &stubRenderer{}).WithAuditLog(&stubAudit{saveErr: errors.New("db down")})

	if _, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"}); err != nil {
		t.Fatalf("audit failure must not fail the request: %v", err)
	}
}

func TestEncodeSkipsQualityWhenDisabled(t *testing.T) {
	profile := detection.GPUProfile()
	profile.QualityScoring = false
	det := &stubDetector{profile: profile, outcome: oneFaceOutcome(t, true)}
	uc := newTestUseCase(det, nil, &stubRenderer{})

	res, err := uc.Encode(context.Background(), EncodeRequest{Filename: "a.jpg", Data: []byte("x"), OriginalPath: "/mnt/photos/a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Qualities != nil {
		t.Fatalf("expected no qualities, got %+v", res.Qualities)
	}
}

func TestCompareDescriptorsRejectsMismatchedLength(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil)
	ref := descriptorOf(0)
	_, err := uc.CompareDescriptors(context.Background(), ref, [][]float32{ref, make([]float32, 64)})
	if Classify(err) != CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestCompareDescriptorsPreservesOrder(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil)
	d, err := uc.CompareDescriptors(context.Background(), []float32{0, 0}, [][]float32{{3, 4}, {0, 0}, {1, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d) != 3 || d[0] != 5 || d[1] != 0 || d[2] != 1 {
		t.Fatalf("unexpected distances %v", d)
	}
}

func pngBytes(t *testing.T, w, h int, shade func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: shade(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return buf.Bytes()
}

func diagonal(x, y int) uint8 { return uint8((x + y) * 2) }

func TestHashImageComputesAndCaches(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil).WithCache(cache)

	res, err := uc.HashImage(context.Background(), ImageFile{Filename: "a.png", Data: pngBytes(t, 64, 64, diagonal)}, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HashSize != 8 || res.Bits != 64 || len(res.Hash) != 16 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(cache.getKeys) != 1 {
		t.Fatalf("a cache miss should not be retried, got %d reads", len(cache.getKeys))
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != cache.getKeys[0] || cache.setValues[0] != res.Hash {
		t.Fatalf("fingerprint should be cached under the read key, got %v", cache.setKeys)
	}
}

func TestHashImageServesFromCache(t *testing.T) {
	cache := &stubCache{getValues: []string{"ffff0000ffff0000"}}
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil).WithCache(cache)

	res, err := uc.HashImage(context.Background(), ImageFile{Filename: "a.png", Data: []byte("not decoded")}, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Hash != "ffff0000ffff0000" || len(cache.setKeys) != 0 {
		t.Fatalf("expected cached hash without a write, got %+v", res)
	}
}

func TestHashImageDegradesOnCacheFailure(t *testing.T) {
	cache := &stubCache{
		getErrs: []error{transientRedisError{}, transientRedisError{}},
		setErrs: []error{errors.New("read only")},
	}
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil).WithCache(cache)

	if _, err := uc.HashImage(context.Background(), ImageFile{Filename: "a.png", Data: pngBytes(t, 32, 32, diagonal)}, 8); err != nil {
		t.Fatalf("cache failure must not fail hashing: %v", err)
	}
	if len(cache.getKeys) != 2 {
		t.Fatalf("transient cache errors should be retried, got %d reads", len(cache.getKeys))
	}
}

func TestHashImageValidation(t *testing.T) {
	disabled := detection.CPUProfile()
	disabled.PerceptualHash = false

	tests := []struct {
		name    string
		profile detection.Profile
		data    []byte
		size    int
		want    ErrorCode
	}{
		{"size too small", detection.CPUProfile(), []byte("x"), 2, CodeInvalidInput},
		{"size too large", detection.CPUProfile(), []byte("x"), 64, CodeInvalidInput},
		{"empty file", detection.CPUProfile(), nil, 8, CodeInvalidInput},
		{"corrupt file", detection.CPUProfile(), []byte("garbage"), 8, CodeInvalidImage},
		{"disabled", disabled, []byte("x"), 8, CodeFeatureDisabled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uc := newTestUseCase(&stubDetector{profile: tc.profile}, nil, nil)
			_, err := uc.HashImage(context.Background(), ImageFile{Filename: "a.png", Data: tc.data}, tc.size)
			if got := Classify(err); got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestCompareImagesIdenticalAndDifferent(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil)
	a := ImageFile{Filename: "a.png", Data: pngBytes(t, 64, 64, diagonal)}
	b := ImageFile{Filename: "b.png", Data: pngBytes(t, 64, 64, func(x, y int) uint8 { return 255 - diagonal(x, y) })}

	same, err := uc.CompareImages(context.Background(), a, a, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same.Distance != 0 || same.Hash1 != same.Hash2 || same.Bits != 64 {
		t.Fatalf("identical images should have distance 0, got %+v", same)
	}

	diff, err := uc.CompareImages(context.Background(), a, b, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.Distance < 0 || diff.Distance > 64 {
		t.Fatalf("distance out of range: %d", diff.Distance)
	}
}

func TestCompareImagesFailsOnCorruptSecondImage(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil)
	a := ImageFile{Filename: "a.png", Data: pngBytes(t, 16, 16, diagonal)}
	_, err := uc.CompareImages(context.Background(), a, ImageFile{Filename: "b.png", Data: []byte("nope")}, 8)
	if Classify(err) != CodeInvalidImage {
		t.Fatalf("expected invalid_image, got %v", err)
	}
}

func TestGetMetricsSummary(t *testing.T) {
	audit := &stubAudit{
		agg:    &repository.MetricsAggregation{TotalCount: 4, FaceFoundCount: 3, ErrorCount: 1, AverageFaces: 1.5, AverageLatencyMs: 120},
		counts: []repository.ModelCount{{Model: "hog", Count: 2}, {Model: "cnn", Count: 1}},
	}
	uc := newTestUseCase(&stubDetector{profile: detection.GPUProfile()}, nil, nil).WithAuditLog(audit)

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FaceFoundRate != 0.75 || summary.RequestsWonByModel["hog"] != 2 || summary.FailedRequests != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestGetMetricsSummaryWithoutAuditLog(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.GPUProfile()}, nil, nil)
	if _, err := uc.GetMetricsSummary(context.Background()); !errors.Is(err, ErrAuditDisabled) {
		t.Fatalf("expected ErrAuditDisabled, got %v", err)
	}
}

func TestHealthReportsMode(t *testing.T) {
	gpu := newTestUseCase(&stubDetector{profile: detection.GPUProfile()}, nil, nil).Health()
	if gpu.Status != "ok" || gpu.Mode != "gpu" || len(gpu.Models) != 2 {
		t.Fatalf("unexpected gpu health %+v", gpu)
	}
	cpu := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil).Health()
	if cpu.Mode != "cpu" || cpu.Profile != "cpu" {
		t.Fatalf("unexpected cpu health %+v", cpu)
	}
}

func TestGetDetectionLog(t *testing.T) {
	audit := &stubAudit{found: &repository.DetectionLog{RequestID: "req-9", Faces: 2, Model: "hog"}}
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil).WithAuditLog(audit)

	entry, err := uc.GetDetectionLog(context.Background(), "req-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Faces != 2 || len(audit.lookups) != 1 || audit.lookups[0] != "req-9" {
		t.Fatalf("unexpected lookup %+v %v", entry, audit.lookups)
	}
}

func TestGetDetectionLogErrors(t *testing.T) {
	uc := newTestUseCase(&stubDetector{profile: detection.CPUProfile()}, nil, nil)
	if _, err := uc.GetDetectionLog(context.Background(), "req"); !errors.Is(err, ErrAuditDisabled) {
		t.Fatalf("expected ErrAuditDisabled, got %v", err)
	}

	audit := &stubAudit{findErr: logging.NewOperationError("repository.find_by_request_id", "req", repository.ErrLogNotFound)}
	uc.WithAuditLog(audit)
	if _, err := uc.GetDetectionLog(context.Background(), " "); Classify(err) != CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if len(audit.lookups) != 0 {
		t.Fatal("blank id must not reach the audit log")
	}
	if _, err := uc.GetDetectionLog(context.Background(), "req"); Classify(err) != CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}
