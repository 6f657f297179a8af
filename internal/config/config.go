package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backend names accepted in STORAGE_BACKEND
const (
	BackendLocal = "local"
	BackendAzure = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64

	// Persistence. Empty DatabaseURL runs the API in analyze-only mode;
	// the worker refuses to start without it.
	DatabaseURL string

	// Image and overlay storage
	StorageBackend   string
	LocalStoragePath string
	OverlayPrefix    string
	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string

	// Pipeline defaults
	ModelPath        string
	SoilFactor       float64
	GridResolution   int
	HealthyThreshold float64
	BandRegistryPath string

	// Background worker
	PollInterval         time.Duration
	BatchSize            int
	WorkerConcurrency    int
	MaxConsecutiveErrors int
	MaxImageRetries      int
	ReclaimStaleAfter    time.Duration
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 32*1024*1024), // 32MB, drone TIFFs are large

		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),

		StorageBackend:   getEnvOrDefault("STORAGE_BACKEND", BackendLocal),
		LocalStoragePath: getEnvOrDefault("LOCAL_STORAGE_PATH", "./data/images"),
		OverlayPrefix:    getEnvOrDefault("OVERLAY_PREFIX", "overlays"),
		AzureAccountName: getEnvOrDefault("AZURE_STORAGE_ACCOUNT", ""),
		AzureAccountKey:  getEnvOrDefault("AZURE_STORAGE_KEY", ""),
		AzureContainer:   getEnvOrDefault("AZURE_STORAGE_CONTAINER", "field-images"),

		ModelPath:        getEnvOrDefault("MODEL_PATH", ""),
		SoilFactor:       parseFloatOrDefault("SOIL_FACTOR", 0.5),
		GridResolution:   int(parseIntOrDefault("GRID_RESOLUTION", 20)),
		HealthyThreshold: parseFloatOrDefault("HEALTHY_THRESHOLD", 0.5),
		BandRegistryPath: getEnvOrDefault("BAND_REGISTRY", ""),

		PollInterval:         parseDurationOrDefault("WORKER_POLL_INTERVAL", 10*time.Second),
		BatchSize:            int(parseIntOrDefault("WORKER_BATCH_SIZE", 5)),
		WorkerConcurrency:    int(parseIntOrDefault("WORKER_CONCURRENCY", 2)),
		MaxConsecutiveErrors: int(parseIntOrDefault("WORKER_MAX_CONSECUTIVE_ERRORS", 10)),
		MaxImageRetries:      int(parseIntOrDefault("WORKER_MAX_IMAGE_RETRIES", 3)),
		ReclaimStaleAfter:    parseDurationOrDefault("WORKER_RECLAIM_STALE_AFTER", 10*time.Minute),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 || cfg.ImageFetchTimeout <= 0 || cfg.AnalysisTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			cfg.RequestTimeout, cfg.ImageFetchTimeout, cfg.AnalysisTimeout)
	}
	if cfg.StorageBackend != BackendLocal && cfg.StorageBackend != BackendAzure {
		return nil, fmt.Errorf("invalid STORAGE_BACKEND: %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == BackendAzure && (cfg.AzureAccountName == "" || cfg.AzureAccountKey == "") {
		return nil, fmt.Errorf("azure backend requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
	}
	if cfg.GridResolution < 1 || cfg.GridResolution > 100 {
		return nil, fmt.Errorf("GRID_RESOLUTION must be in [1,100] (got %d)", cfg.GridResolution)
	}
	if cfg.SoilFactor <= 0 {
		return nil, fmt.Errorf("SOIL_FACTOR must be > 0 (got %g)", cfg.SoilFactor)
	}
	if cfg.HealthyThreshold <= 0 || cfg.HealthyThreshold > 1 {
		return nil, fmt.Errorf("HEALTHY_THRESHOLD must be in (0,1] (got %g)", cfg.HealthyThreshold)
	}
	if cfg.PollInterval <= 0 || cfg.BatchSize <= 0 || cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("worker settings must be > 0 (got poll=%s, batch=%d, concurrency=%d)",
			cfg.PollInterval, cfg.BatchSize, cfg.WorkerConcurrency)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
