package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/config"
	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/overlay"
	"github.com/example/face-vision/internal/quality"
	"github.com/example/face-vision/internal/usecase"
)

var (
	detectDebug   bool
	detectNoBar   bool
	detectProfile string
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Detect and encode faces in local images",
	Long: `Runs the multi-scale detection strategy on each image and prints one JSON
object per line. With --debug, overlays are written to a debug directory next
to each image.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectDebug, "debug", false, "Write debug overlays next to each image")
	detectCmd.Flags().BoolVar(&detectNoBar, "no-progress", false, "Disable the progress bar")
	detectCmd.Flags().StringVar(&detectProfile, "profile", "", "Detector profile (overrides DETECTOR_PROFILE)")
	rootCmd.AddCommand(detectCmd)
}

type detectLine struct {
	File           string                `json:"file"`
	Faces          int                   `json:"faces"`
	Locations      [][4]int              `json:"locations"`
	Encodings      []detector.Descriptor `json:"encodings,omitempty"`
	Qualities      []quality.Score       `json:"qualities,omitempty"`
	Scale          int                   `json:"scale,omitempty"`
	Model          detector.Model        `json:"model,omitempty"`
	DebugImagePath string                `json:"debug_image_path,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if detectProfile != "" {
		cfg.Detector.Profile = detectProfile
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	profile, err := cfg.Detector.ResolveProfile(config.AcceleratorPresent)
	if err != nil {
		return err
	}
	stack, err := openDetection(cfg, profile, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	var renderer usecase.Renderer
	if detectDebug {
		renderer = overlay.NewRenderer()
	}
	uc := usecase.NewVisionUseCase(stack.strategy, stack.encoder, renderer, usecase.Options{
		DebugSubdir: cfg.Debug.Subdir,
		MaxPixels:   cfg.Detector.MaxImagePixels,
	}, logger)

	bar := newProgressBar(len(args), "Detecting faces", detectNoBar)
	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, path := range args {
		line := detectFile(cmd.Context(), uc, path, detectDebug)
		if line.Error != "" {
			failed++
			logger.Warn("detection failed", zap.String("file", path), zap.String("error", line.Error))
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

func detectFile(ctx context.Context, uc *usecase.VisionUseCase, path string, debug bool) detectLine {
	line := detectLine{File: path, Locations: [][4]int{}}
	data, err := os.ReadFile(path)
	if err != nil {
		line.Error = err.Error()
		return line
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	res, err := uc.Encode(ctx, usecase.EncodeRequest{
		Filename:     filepath.Base(path),
		Data:         data,
		OriginalPath: abs,
	})
	if err != nil {
		line.Error = usecase.PublicMessage(err)
		return line
	}

	line.Faces = len(res.Locations)
	for _, r := range res.Locations {
		line.Locations = append(line.Locations, r.CSS())
	}
	line.Encodings = res.Encodings
	line.Qualities = res.Qualities
	line.Scale = res.Scale
	line.Model = res.Model
	if debug {
		line.DebugImagePath = res.DebugImagePath
	}
	return line
}

func newProgressBar(count int, description string, disabled bool) *progressbar.ProgressBar {
	if disabled {
		return progressbar.DefaultSilent(int64(count))
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
