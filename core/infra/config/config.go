package config

import (
	"os"
	"strings"
)

const (
	defaultHTTPAddr    = ":8081"
	defaultMetricsAddr = ":9092"
	defaultRedisURL    = "redis://localhost:6379"

	envHTTPAddr           = "HTTP_ADDR"
	envMetricsAddr        = "METRICS_ADDR"
	envDatabaseURL        = "DATABASE_URL"
	envRedisURL           = "REDIS_URL"
	envNATSURL            = "NATS_URL"
	envUpstreamConfigPath = "UPSTREAM_CONFIG_PATH"
	envAssetBucket        = "ASSET_BUCKET"
	envAssetRegion        = "ASSET_REGION"
	envAssetEndpoint      = "ASSET_ENDPOINT"
	envAssetPublicBaseURL = "ASSET_PUBLIC_BASE_URL"
	envAssetPrefix        = "ASSET_PREFIX"
)

// Config holds runtime configuration for the API service.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// DatabaseURL selects the PostgreSQL store when set; otherwise RedisURL is used.
	DatabaseURL        string
	RedisURL           string
	NatsURL            string
	UpstreamConfigPath string
	Assets             AssetConfig
}

// AssetConfig describes the object store used for brand asset uploads.
type AssetConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	Prefix        string
}

// Enabled reports whether uploads have somewhere to go.
func (a AssetConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load returns configuration from environment variables with defaults.
// Upstream endpoints are resolved separately by LoadUpstream.
func Load() *Config {
	return &Config{
		HTTPAddr:           envOr(envHTTPAddr, defaultHTTPAddr),
		MetricsAddr:        envOr(envMetricsAddr, defaultMetricsAddr),
		DatabaseURL:        envOr(envDatabaseURL, ""),
		RedisURL:           envOr(envRedisURL, defaultRedisURL),
		NatsURL:            envOr(envNATSURL, ""),
		UpstreamConfigPath: envOr(envUpstreamConfigPath, ""),
		Assets: AssetConfig{
			Bucket:        envOr(envAssetBucket, ""),
			Region:        envOr(envAssetRegion, ""),
			Endpoint:      envOr(envAssetEndpoint, ""),
			PublicBaseURL: strings.TrimRight(envOr(envAssetPublicBaseURL, ""), "/"),
			Prefix:        strings.Trim(envOr(envAssetPrefix, ""), "/"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
