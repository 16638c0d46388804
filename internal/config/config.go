package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string `yaml:"address"`
	ShutdownTimeout string `yaml:"shutdownTimeout"` // e.g. "5s"
}

// UploadConfig configures handling of uploaded audio files.
type UploadConfig struct {
	// Dir is where uploads and converted audio are staged. Empty means the
	// system temp directory.
	Dir string `yaml:"dir"`
	// AllowedExtensions lists accepted upload extensions without the dot.
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

// DecoderConfig configures the ffmpeg-based audio decoder.
type DecoderConfig struct {
	FFmpegBinary string `yaml:"ffmpegBinary"`
}

// TranscriberConfig configures the speech-to-text collaborator.
type TranscriberConfig struct {
	Binary   string `yaml:"binary"`   // whisper-compatible CLI
	Model    string `yaml:"model"`    // model name passed to the CLI
	Language string `yaml:"language"` // expected audio language, e.g. "en"
}

// PipelineConfig tunes the stage pipeline.
type PipelineConfig struct {
	// StageDelay inserts a pause between stages so progress updates are
	// observable by polling clients. Parsed as a Go duration.
	StageDelay string `yaml:"stageDelay"`
}

// MiddlewareConfig contains HTTP middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig configures request rate limiting.
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// TokenBucketConfig configures the token bucket algorithm.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig configures the circuit breaker middleware.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
	Upload      UploadConfig      `yaml:"upload"`
	Decoder     DecoderConfig     `yaml:"decoder"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
