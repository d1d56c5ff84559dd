// Package config loads the station configuration from the environment.
//
// A .env file in the working directory is read first when present. Values
// already set in the environment take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
)

// Config holds the station configuration.
type Config struct {
	// Cameras
	CameraSources []string
	CameraFocus   []float64
	CameraWarmup  time.Duration

	// Transporter serial line
	SerialPort         string
	SerialBaud         int
	SerialMarker       string
	SettleDelay        time.Duration
	SerialReadTimeout  time.Duration
	SerialRetryBackoff time.Duration

	// OCR
	OCRProvider    string
	OCRCredentials string
	OCRLanguage    string
	OCRHints       []string
	TessdataPrefix string
	OCRTimeout     time.Duration

	// Classification
	KeywordsPath   string
	MatchThreshold int

	// Change detection and cycle
	CropMethod    string
	CycleInterval time.Duration

	// Result sinks
	RedisURL     string
	RedisChannel string
	SnapshotDir  string

	// Logging
	LogLevel  string
	LogFormat string
}

// Camera is one configured camera source.
type Camera struct {
	// Source is the raw CAMERA_SOURCES entry.
	Source string

	// Device reports whether Source is a /dev/videoN index rather than a
	// directory of replay frames.
	Device bool
	Index  int
	Focus  float64
}

// Load reads the given .env files (or ./.env when none are given), then
// builds and validates the configuration. Missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return LoadConfig()
}

// LoadConfig builds the configuration from environment variables only.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		CameraSources:      getEnvAsListOrDefault("CAMERA_SOURCES", []string{"0", "2", "4"}),
		CameraFocus:        getEnvAsFloatListOrDefault("CAMERA_FOCUS", []float64{20, 20, 30}),
		CameraWarmup:       getEnvAsDurationOrDefault("CAMERA_WARMUP", 2*time.Second),
		SerialPort:         getEnvOrDefault("SERIAL_PORT", "/dev/ttyUSB0"),
		SerialBaud:         getEnvAsIntOrDefault("SERIAL_BAUD", 9600),
		SerialMarker:       getEnvOrDefault("SERIAL_MARKER", ""),
		SettleDelay:        getEnvAsDurationOrDefault("SETTLE_DELAY", time.Second),
		SerialReadTimeout:  getEnvAsDurationOrDefault("SERIAL_READ_TIMEOUT", 200*time.Millisecond),
		SerialRetryBackoff: getEnvAsDurationOrDefault("SERIAL_RETRY_BACKOFF", 100*time.Millisecond),
		OCRProvider:        strings.ToLower(getEnvOrDefault("OCR_PROVIDER", "vision")),
		OCRCredentials:     getEnvOrDefault("OCR_CREDENTIALS", "extra-files/token.json"),
		OCRLanguage:        getEnvOrDefault("OCR_LANGUAGE", "eng"),
		OCRHints:           getEnvAsListOrDefault("OCR_HINTS", nil),
		TessdataPrefix:     getEnvOrDefault("TESSDATA_PREFIX", ""),
		OCRTimeout:         getEnvAsDurationOrDefault("OCR_TIMEOUT", 15*time.Second),
		KeywordsPath:       getEnvOrDefault("KEYWORDS_PATH", "extra-files/boxes.json"),
		MatchThreshold:     getEnvAsIntOrDefault("MATCH_THRESHOLD", 70),
		CropMethod:         strings.ToLower(getEnvOrDefault("CROP_METHOD", "ssim")),
		CycleInterval:      getEnvAsDurationOrDefault("CYCLE_INTERVAL", 50*time.Millisecond),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		RedisChannel:       getEnvOrDefault("REDIS_CHANNEL", "boxes"),
		SnapshotDir:        getEnvOrDefault("SNAPSHOT_DIR", ""),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if len(c.CameraSources) == 0 {
		return fmt.Errorf("CAMERA_SOURCES is required")
	}

	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.SerialBaud <= 0 {
		return fmt.Errorf("SERIAL_BAUD must be positive, got %d", c.SerialBaud)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %s", c.SettleDelay)
	}

	switch c.OCRProvider {
	case "vision":
		if c.OCRCredentials == "" {
			return fmt.Errorf("OCR_CREDENTIALS is required for the vision provider")
		}
	case "tesseract":
	default:
		return fmt.Errorf("OCR_PROVIDER must be vision or tesseract, got %q", c.OCRProvider)
	}

	if c.KeywordsPath == "" {
		return fmt.Errorf("KEYWORDS_PATH is required")
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 100 {
		return fmt.Errorf("MATCH_THRESHOLD must be between 0 and 100, got %d", c.MatchThreshold)
	}

	switch c.CropMethod {
	case "ssim", "diff":
	default:
		return fmt.Errorf("CROP_METHOD must be ssim or diff, got %q", c.CropMethod)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %s", c.CycleInterval)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// Cameras pairs each source with its focus. Sources without a focus value
// get 0 and extra focus values are ignored.
func (c *Config) Cameras() []Camera {
	out := make([]Camera, len(c.CameraSources))
	for i, src := range c.CameraSources {
		out[i] = Camera{Source: src}
		if idx, err := strconv.Atoi(src); err == nil && idx >= 0 {
			out[i].Device = true
			out[i].Index = idx
		}
		if i < len(c.CameraFocus) {
			out[i].Focus = c.CameraFocus[i]
		}
	}
	return out
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn("invalid integer, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("invalid duration, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsFloatListOrDefault(key string, defaultValue []float64) []float64 {
	parts := getEnvAsListOrDefault(key, nil)
	if parts == nil {
		return defaultValue
	}
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			log.Warn("invalid number list, using default", "key", key, "value", part)
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
