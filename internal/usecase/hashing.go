package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/face-vision/internal/imaging"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/phash"
)

// ImageFile is an uploaded file.
type ImageFile struct {
	Filename string
	Data     []byte
}

// HashResult describes one perceptual hash.
type HashResult struct {
	Hash     string `json:"hash"`
	HashSize int    `json:"hash_size"`
	Bits     int    `json:"bits"`
}

// ImageComparison is the hash distance between two images.
type ImageComparison struct {
	Hash1    string `json:"hash1"`
	Hash2    string `json:"hash2"`
	HashSize int    `json:"hash_size"`
	Bits     int    `json:"bits"`
	Distance int    `json:"distance"`
}

// HashImage computes the perceptual hash of one image.
func (uc *VisionUseCase) HashImage(ctx context.Context, file ImageFile, size int) (*HashResult, error) {
	requestID := uuid.NewString()
	if err := uc.checkHashing(requestID, size); err != nil {
		return nil, err
	}

	fp, err := uc.fingerprint(ctx, requestID, file, size)
	if err != nil {
		return nil, err
	}
	return &HashResult{Hash: fp.Hex(), HashSize: size, Bits: fp.Bits()}, nil
}

// CompareImages hashes both images and returns their Hamming distance.
func (uc *VisionUseCase) CompareImages(ctx context.Context, first, second ImageFile, size int) (*ImageComparison, error) {
	requestID := uuid.NewString()
	if err := uc.checkHashing(requestID, size); err != nil {
		return nil, err
	}

	var fp1, fp2 phash.Fingerprint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fp1, err = uc.fingerprint(gctx, requestID, first, size)
		return err
	})
	g.Go(func() error {
		var err error
		fp2, err = uc.fingerprint(gctx, requestID, second, size)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	distance, err := fp1.Distance(fp2)
	if err != nil {
		return nil, logging.NewOperationError("usecase.compare_images", requestID, err)
	}
	logging.WithOperation(uc.logger, "usecase.compare_images", requestID).Info("images compared",
		zap.Int("hash_size", size),
		zap.Int("distance", distance),
	)
	return &ImageComparison{
		Hash1:    fp1.Hex(),
		Hash2:    fp2.Hex(),
		HashSize: size,
		Bits:     fp1.Bits(),
		Distance: distance,
	}, nil
}

func (uc *VisionUseCase) checkHashing(requestID string, size int) error {
	if !uc.Profile().PerceptualHash {
		return logging.NewOperationError("usecase.hash", requestID, ErrFeatureDisabled)
	}
	if err := phash.ValidateSize(size); err != nil {
		return logging.NewOperationError("usecase.hash", requestID, err)
	}
	return nil
}

func (uc *VisionUseCase) fingerprint(ctx context.Context, requestID string, file ImageFile, size int) (phash.Fingerprint, error) {
	if len(file.Data) == 0 {
		return phash.Fingerprint{}, logging.NewOperationError("usecase.hash", requestID,
			fmt.Errorf("%w: empty file %q", ErrInvalidInput, file.Filename))
	}

	digest := sha1Hex(file.Data)
	if fp, ok := uc.cachedFingerprint(ctx, requestID, digest, size); ok {
		return fp, nil
	}

	img, _, err := imaging.Decode(file.Data, uc.opts.MaxPixels)
	if err != nil {
		return phash.Fingerprint{}, logging.NewOperationError("usecase.decode", requestID, err)
	}
	fp, err := phash.Compute(img, size)
	if err != nil {
		return phash.Fingerprint{}, logging.NewOperationError("usecase.hash", requestID, err)
	}
	uc.storeFingerprint(ctx, requestID, digest, fp)
	return fp, nil
}
