package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-vision/internal/config"
	"github.com/example/face-vision/internal/detection"
	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/detector/dlib"
	"github.com/example/face-vision/internal/detector/pico"
)

// detectionStack owns the loaded detector backends.
type detectionStack struct {
	strategy *detection.Strategy
	encoder  detector.Encoder
	close    func()
}

func (s *detectionStack) Close() {
	if s.close != nil {
		s.close()
	}
}

// backends lists what a profile needs loaded at startup.
type backends struct {
	dlib    bool
	cnn     bool
	pico    bool
	encoder bool
}

// backendsFor resolves the backends of profile. Models that do not encode
// while detecting pull in dlib for its encoder.
func backendsFor(profile detection.Profile) backends {
	var b backends
	for _, m := range profile.Models {
		switch m {
		case detector.ModelCNN:
			b.dlib, b.cnn = true, true
		case detector.ModelHOG:
			b.dlib = true
		case detector.ModelPico:
			b.pico = true
		}
		if !m.Encodes() {
			b.dlib, b.encoder = true, true
		}
	}
	return b
}

func openDetection(cfg *config.Config, profile detection.Profile, logger *zap.Logger) (*detectionStack, error) {
	reg := detector.NewRegistry()
	stack := &detectionStack{}
	needs := backendsFor(profile)

	if needs.dlib {
		rec, err := dlib.Open(cfg.Detector.ModelsDir, needs.cnn, logger)
		if err != nil {
			return nil, err
		}
		rec.Register(reg)
		stack.close = rec.Close
	}
	if needs.pico {
		if cfg.Detector.PigoCascade == "" {
			stack.Close()
			return nil, fmt.Errorf("profile %s uses pico but PIGO_CASCADE is not set", profile.Name)
		}
		det, err := pico.Load(cfg.Detector.PigoCascade, pico.DefaultParams())
		if err != nil {
			stack.Close()
			return nil, err
		}
		reg.Register(det)
	}

	strategy, err := detection.NewStrategy(profile, reg, detection.Options{
		AllowedExtensions: cfg.Detector.AllowedExtensions,
		MaxPixels:         cfg.Detector.MaxImagePixels,
	}, logger)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.strategy = strategy
	stack.encoder = reg.Encoder()
	if needs.encoder && stack.encoder == nil {
		stack.Close()
		return nil, fmt.Errorf("profile %s needs a descriptor encoder but none is loaded", profile.Name)
	}

	logger.Info("detectors loaded",
		zap.String("profile", profile.Name),
		zap.Ints("scales", profile.Scales),
		zap.Any("models", reg.Models()),
	)
	return stack, nil
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}
