package probe

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 120, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "swatch.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestInspectImage(t *testing.T) {
	path := writeTestPNG(t, 120, 90)

	info, err := NewProber("").Inspect(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "image/png", info.MIMEType)
	assert.True(t, info.IsImage())
	assert.False(t, info.IsVideo())
	assert.Equal(t, 120, info.Width)
	assert.Equal(t, 90, info.Height)
	assert.Positive(t, info.Size)
	assert.Zero(t, info.Duration)
}

func TestInspectUnknownBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0x03}, 0o644))

	info, err := NewProber("").Inspect(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, info.IsImage())
	assert.False(t, info.IsVideo())
	assert.Equal(t, int64(4), info.Size)
}

func TestInspectMissingFile(t *testing.T) {
	_, err := NewProber("").Inspect(context.Background(), "/nonexistent/file.png")
	assert.Error(t, err)
}
