package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1200, cfg.Image.MaxWidth)
	assert.Equal(t, 1600, cfg.Image.MaxHeight)
	assert.InDelta(t, 0.80, cfg.Image.Quality, 0.001)
	assert.Equal(t, "image/webp", cfg.Image.OutputFormat)

	assert.Equal(t, 20, cfg.Video.MaxSizeMB)
	assert.Equal(t, 1_500_000, cfg.Video.VideoBitrate)
	assert.Equal(t, 1280, cfg.Video.MaxWidth)
	assert.Equal(t, 30, cfg.Video.FrameRate)

	require.NoError(t, cfg.Validate())
}

func TestValidateNormalizesOutOfRangeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image.Quality = 1.7
	cfg.Image.MaxWidth = -5
	cfg.Video.MaxSizeMB = 0
	cfg.Performance.WorkerThreads = 0

	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.80, cfg.Image.Quality, 0.001)
	assert.Equal(t, 1200, cfg.Image.MaxWidth)
	assert.Equal(t, 20, cfg.Video.MaxSizeMB)
	assert.Equal(t, 4, cfg.Performance.WorkerThreads)
}

func TestValidateRejectsUnknownOutputFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image.OutputFormat = "image/bmp"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_format")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"

	assert.Error(t, cfg.Validate())
}

func TestUploadEnabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.UploadEnabled())

	cfg.Upload.URL = "https://media.example.com/upload"
	assert.True(t, cfg.UploadEnabled())
}
