package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure.
type Config struct {
	SourceDirectories []string          `mapstructure:"source_directories"`
	TargetDirectory   string            `mapstructure:"target_directory"`
	Image             ImageConfig       `mapstructure:"image"`
	Video             VideoConfig       `mapstructure:"video"`
	Upload            UploadConfig      `mapstructure:"upload"`
	Performance       PerformanceConfig `mapstructure:"performance"`
	Logging           LoggingConfig     `mapstructure:"logging"`
}

// ImageConfig contains image compression settings.
type ImageConfig struct {
	MaxWidth     int     `mapstructure:"max_width"`
	MaxHeight    int     `mapstructure:"max_height"`
	Quality      float64 `mapstructure:"quality"`
	OutputFormat string  `mapstructure:"output_format"`
}

// VideoConfig contains video compression settings.
type VideoConfig struct {
	MaxSizeMB    int    `mapstructure:"max_size_mb"`
	VideoBitrate int    `mapstructure:"video_bitrate"`
	MaxWidth     int    `mapstructure:"max_width"`
	FrameRate    int    `mapstructure:"frame_rate"`
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	FFprobePath  string `mapstructure:"ffprobe_path"`
	TempDir      string `mapstructure:"temp_dir"`
}

// UploadConfig contains media host upload settings.
type UploadConfig struct {
	URL            string `mapstructure:"url"`
	Preset         string `mapstructure:"preset"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PerformanceConfig contains performance tuning settings.
type PerformanceConfig struct {
	WorkerThreads int  `mapstructure:"worker_threads"`
	ShowProgress  bool `mapstructure:"show_progress"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values. The defaults
// mirror what the storefront upload forms use.
func DefaultConfig() *Config {
	return &Config{
		Image: ImageConfig{
			MaxWidth:     1200,
			MaxHeight:    1600,
			Quality:      0.80,
			OutputFormat: "image/webp",
		},
		Video: VideoConfig{
			MaxSizeMB:    20,
			VideoBitrate: 1_500_000,
			MaxWidth:     1280,
			FrameRate:    30,
		},
		Upload: UploadConfig{
			TimeoutSeconds: 60,
		},
		Performance: PerformanceConfig{
			WorkerThreads: 4,
			ShowProgress:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "media-press.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.media-press")
		viper.AddConfigPath("/etc/media-press")
	}

	viper.SetEnvPrefix("MEDIA_PRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration and normalizes out-of-range values
// back to their defaults.
func (c *Config) Validate() error {
	if c.Image.MaxWidth <= 0 {
		c.Image.MaxWidth = 1200
	}
	if c.Image.MaxHeight <= 0 {
		c.Image.MaxHeight = 1600
	}
	if c.Image.Quality <= 0 || c.Image.Quality > 1 {
		c.Image.Quality = 0.80
	}

	validFormats := map[string]bool{
		"image/webp": true,
		"image/jpeg": true,
		"image/png":  true,
	}
	if c.Image.OutputFormat == "" {
		c.Image.OutputFormat = "image/webp"
	}
	if !validFormats[c.Image.OutputFormat] {
		return fmt.Errorf("invalid image output_format: %s (valid: image/webp, image/jpeg, image/png)",
			c.Image.OutputFormat)
	}

	if c.Video.MaxSizeMB <= 0 {
		c.Video.MaxSizeMB = 20
	}
	if c.Video.VideoBitrate <= 0 {
		c.Video.VideoBitrate = 1_500_000
	}
	if c.Video.MaxWidth <= 0 {
		c.Video.MaxWidth = 1280
	}
	if c.Video.FrameRate <= 0 {
		c.Video.FrameRate = 30
	}

	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = 60
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// UploadEnabled returns true if a media host endpoint is configured.
func (c *Config) UploadEnabled() bool {
	return c.Upload.URL != ""
}
