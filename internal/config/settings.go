// Package config loads service configuration from environment variables
// (and an optional .env file), following the env-var surface enumerated
// in the specification.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultRequestLimitPerMinute = 20
	defaultCacheExpireSeconds    = 3600
	defaultNodesFile             = ".env.minio.json"
	defaultHTTPReadTimeoutSec    = 15
	defaultHTTPWriteTimeoutSec   = 15
)

// Settings is the fully-resolved, validated configuration for one
// process. Constructed once at startup and threaded through the
// application context; never mutated afterward.
type Settings struct {
	ProjectName string
	HostCDN     string
	PortCDN     string

	BucketName     string
	UploadPartSize int64

	NodesFile string

	IPAPIKey string

	RedisHost string
	RedisPort string

	CacheExpireInSeconds int

	RequestLimitPerMinute int
	IsRateLimit           bool

	LogLevel string

	HTTPReadTimeoutSec  int
	HTTPWriteTimeoutSec int
}

// Load reads .env (if present; missing is not an error) then resolves
// Settings from the process environment, returning an error naming the
// variable when a required variable is absent or invalid.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		ProjectName: os.Getenv("PROJECT_NAME"),
		HostCDN:     os.Getenv("HOST_CDN"),
		PortCDN:     os.Getenv("PORT_CDN"),
		BucketName:  os.Getenv("BUCKET_NAME"),
		IPAPIKey:    os.Getenv("IPAPI_KEY"),
		RedisHost:   os.Getenv("REDIS_HOST"),
		RedisPort:   os.Getenv("REDIS_PORT"),
		NodesFile:   envOrDefault("CDN_NODES_FILE", defaultNodesFile),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}

	for name, dst := range map[string]*string{
		"PROJECT_NAME": &s.ProjectName,
		"HOST_CDN":     &s.HostCDN,
		"PORT_CDN":     &s.PortCDN,
		"BUCKET_NAME":  &s.BucketName,
		"REDIS_HOST":   &s.RedisHost,
		"REDIS_PORT":   &s.RedisPort,
	} {
		if *dst == "" {
			return nil, fmt.Errorf("config: required environment variable %s is missing", name)
		}
	}

	partSize, err := parseIntEnv("UPLOAD_PART_SIZE", 0)
	if err != nil {
		return nil, err
	}
	const s3MinimumPartSize = 5 * 1024 * 1024
	if partSize <= s3MinimumPartSize {
		return nil, fmt.Errorf("config: UPLOAD_PART_SIZE must be greater than %d bytes (S3 minimum), got %d", s3MinimumPartSize, partSize)
	}
	s.UploadPartSize = int64(partSize)

	s.CacheExpireInSeconds, err = parseIntEnvOrDefault("CACHE_EXPIRE_IN_SECONDS", defaultCacheExpireSeconds)
	if err != nil {
		return nil, err
	}

	s.RequestLimitPerMinute, err = parseIntEnvOrDefault("REQUEST_LIMIT_PER_MINUTE", defaultRequestLimitPerMinute)
	if err != nil {
		return nil, err
	}

	s.IsRateLimit = os.Getenv("IS_RATE_LIMIT") == "True" || os.Getenv("IS_RATE_LIMIT") == "true"

	s.HTTPReadTimeoutSec, err = parseIntEnvOrDefault("HTTP_READ_TIMEOUT", defaultHTTPReadTimeoutSec)
	if err != nil {
		return nil, err
	}
	s.HTTPWriteTimeoutSec, err = parseIntEnvOrDefault("HTTP_WRITE_TIMEOUT", defaultHTTPWriteTimeoutSec)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func parseIntEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		if def != 0 {
			return def, nil
		}
		return 0, fmt.Errorf("config: required environment variable %s is missing", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: environment variable %s is not an integer: %w", name, err)
	}
	return v, nil
}

func parseIntEnvOrDefault(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: environment variable %s is not an integer: %w", name, err)
	}
	return v, nil
}
