package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/auth"
	"github.com/example/face-vision/internal/config"
	"github.com/example/face-vision/internal/grpcserver"
	"github.com/example/face-vision/internal/handlers"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/overlay"
	"github.com/example/face-vision/internal/repository"
	"github.com/example/face-vision/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
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

	var health *grpcserver.HealthServer
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.GRPCHealthAddr, err)
		}
		health = grpcserver.NewHealthServer(logger)
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error("gRPC health server failed", zap.Error(err))
			}
		}()
		defer health.Shutdown()
	}

	stack, err := openDetection(cfg, profile, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	uc := usecase.NewVisionUseCase(stack.strategy, stack.encoder, overlay.NewRenderer(), usecase.Options{
		DiskRoot:     cfg.Debug.DiskRoot,
		DebugSubdir:  cfg.Debug.Subdir,
		MaxPixels:    cfg.Detector.MaxImagePixels,
		HashCacheTTL: cfg.Redis.HashCacheTTL,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if cfg.Redis.Addr != "" {
		client, err := initRedis(initCtx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		uc.WithCache(usecase.NewRedisCache(client))
	}

	if cfg.Database.DSN != "" {
		db, err := initDatabase(initCtx, cfg.Database)
		if err != nil {
			return err
		}
		repo := repository.NewDetectionLogRepository(db, logger)
		if err := repo.AutoMigrate(initCtx); err != nil {
			return err
		}
		uc.WithAuditLog(repo)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	r.MaxMultipartMemory = cfg.Detector.MaxUploadBytes

	h := handlers.NewHandler(uc, logger, cfg.Detector.MaxUploadBytes)
	handlers.RegisterRoutes(r, h, auth.Protect(cfg.Auth)...)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if health != nil {
		health.SetReady(true)
	}
	logger.Info("face-vision listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("profile", profile.Name),
		zap.Bool("jwt", cfg.Auth.JWTSecret != ""),
	)
	return serve(ctx, server, nil, cfg.ShutdownTimeout, logger)
}

// serve runs server on lis, or on server.Addr when lis is nil, until ctx is
// done. In-flight requests then get up to drain to finish.
func serve(ctx context.Context, server *http.Server, lis net.Listener, drain time.Duration, logger *zap.Logger) error {
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", server.Addr); err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
	}

	served := make(chan error, 1)
	go func() { served <- server.Serve(lis) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("draining http server", zap.Duration("timeout", drain))
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
