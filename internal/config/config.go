package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port         string
	ModelPath    string
	MetadataPath string
	ONNXLibPath  string

	MaxUploadBytes int64
	// MaxImagePixels caps width×height of a decoded upload.
	MaxImagePixels int64

	LogLevel  string
	LogFormat string
	GinMode   string

	// TrustedProxies is handed to gin for client IP resolution. Empty means
	// the peer address of the connection is the client IP.
	TrustedProxies []string

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env file")
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", os.Getenv("MAX_UPLOAD_BYTES"))
	}

	maxPixels, err := strconv.ParseInt(getEnv("MAX_IMAGE_PIXELS", "89478485"), 10, 64)
	if err != nil || maxPixels <= 0 {
		return nil, fmt.Errorf("invalid MAX_IMAGE_PIXELS %q", os.Getenv("MAX_IMAGE_PIXELS"))
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	ginMode := getEnv("GIN_MODE", "release")
	switch ginMode {
	case "debug", "release", "test":
	default:
		return nil, fmt.Errorf("invalid GIN_MODE %q", ginMode)
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		ModelPath:       getEnv("MODEL_PATH", "models/mnist.onnx"),
		MetadataPath:    getEnv("METADATA_PATH", "models/mnist_metadata.json"),
		ONNXLibPath:     getEnv("ONNX_LIB_PATH", ""),
		MaxUploadBytes:  maxUpload,
		MaxImagePixels:  maxPixels,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		GinMode:         ginMode,
		TrustedProxies:  splitList(getEnv("TRUSTED_PROXIES", "")),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// ConfigureLogging applies LogLevel and LogFormat to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(c.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
