// Package config loads the process-wide configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/face-vision/internal/imaging"
)

const (
	ProfileAuto = "auto"
	ProfileGPU  = "gpu"
	ProfileCPU  = "cpu"
)

// Config is read once at startup and never mutated.
type Config struct {
	HTTPAddr        string
	GRPCHealthAddr  string
	ShutdownTimeout time.Duration
	LogLevel        string

	Detector DetectorConfig
	Debug    DebugConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Auth     AuthConfig
}

type DetectorConfig struct {
	Profile           string // auto, gpu, cpu or a name from ProfilesFile
	ProfilesFile      string
	ModelsDir         string
	PigoCascade       string
	AllowedExtensions []string
	MaxUploadBytes    int64
	MaxImagePixels    int
}

type DebugConfig struct {
	DiskRoot string
	Subdir   string
}

type RedisConfig struct {
	Addr         string // empty disables the fingerprint cache
	HashCacheTTL time.Duration
}

type DatabaseConfig struct {
	DSN          string // empty disables the audit log
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	JWTSecret   string // empty leaves every route public
	JWTAudience string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, def int) int {
		n, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		d, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		HTTPAddr:        envString("HTTP_ADDR", ":8080"),
		GRPCHealthAddr:  envString("GRPC_HEALTH_ADDR", ":50051"),
		ShutdownTimeout: durationVar("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        envString("LOG_LEVEL", "info"),
		Detector: DetectorConfig{
			Profile:           strings.ToLower(envString("DETECTOR_PROFILE", ProfileAuto)),
			ProfilesFile:      os.Getenv("PROFILES_FILE"),
			ModelsDir:         envString("MODELS_DIR", "models"),
			PigoCascade:       os.Getenv("PIGO_CASCADE"),
			AllowedExtensions: envList("ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png"}),
			MaxUploadBytes:    int64(intVar("MAX_UPLOAD_BYTES", 32<<20)),
			MaxImagePixels:    intVar("MAX_IMAGE_PIXELS", imaging.DefaultMaxPixels),
		},
		Debug: DebugConfig{
			DiskRoot: os.Getenv("DISK_ROOT"),
			Subdir:   envString("DEBUG_SUBDIR", "debug"),
		},
		Redis: RedisConfig{
			Addr:         os.Getenv("REDIS_ADDR"),
			HashCacheTTL: durationVar("HASH_CACHE_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			DSN:          os.Getenv("DATABASE_DSN"),
			MaxOpenConns: intVar("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: intVar("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:   os.Getenv("JWT_SECRET"),
			JWTAudience: os.Getenv("JWT_AUDIENCE"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	if strings.ContainsAny(cfg.Debug.Subdir, `/\`) || cfg.Debug.Subdir == ".." {
		return nil, fmt.Errorf("config: DEBUG_SUBDIR %q must be a single path element", cfg.Debug.Subdir)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt parses a positive integer, returning def when unset.
func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return d, nil
}

func envList(key string, def []string) []string {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item), ".")); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
