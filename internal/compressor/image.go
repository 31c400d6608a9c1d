package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Image compression defaults, matching the storefront upload forms.
const (
	DefaultMaxWidth     = 1200
	DefaultMaxHeight    = 1600
	DefaultQuality      = 0.80
	DefaultOutputFormat = "image/webp"
)

// ImageOptions configures a single image compression call.
type ImageOptions struct {
	// MaxWidth and MaxHeight bound the output dimensions in pixels. The
	// image is never upscaled to reach them.
	MaxWidth  int
	MaxHeight int
	// Quality is the encoder quality factor in [0, 1].
	Quality float64
	// OutputFormat is the target MIME type: image/webp, image/jpeg or image/png.
	OutputFormat string
}

// DefaultImageOptions returns the options used by the upload forms.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		MaxWidth:     DefaultMaxWidth,
		MaxHeight:    DefaultMaxHeight,
		Quality:      DefaultQuality,
		OutputFormat: DefaultOutputFormat,
	}
}

func (o *ImageOptions) normalize() {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = DefaultQuality
	}
	if o.OutputFormat == "" {
		o.OutputFormat = DefaultOutputFormat
	}
}

// ImageCompressor decodes an image, downscales it to fit within a bounding
// box while preserving aspect ratio, and re-encodes it to the target format.
type ImageCompressor struct {
	log *logrus.Logger
}

// NewImageCompressor creates a new ImageCompressor.
func NewImageCompressor(log *logrus.Logger) *ImageCompressor {
	return &ImageCompressor{log: log}
}

// Compress re-encodes src according to opts and returns a new payload.
// Re-encoding always happens, even when no resize is needed; the source
// bytes are never returned directly.
func (c *ImageCompressor) Compress(ctx context.Context, src []byte, opts ImageOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.normalize()

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width, height := fitDimensions(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)
	if width != bounds.Dx() || height != bounds.Dy() {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	data, err := encodeImage(img, opts.OutputFormat, opts.Quality)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEncode
	}

	res := &Result{
		Data:         data,
		MIMEType:     opts.OutputFormat,
		Width:        width,
		Height:       height,
		OriginalSize: int64(len(src)),
	}
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"width":  width,
			"height": height,
			"before": FormatFileSize(res.OriginalSize),
			"after":  FormatFileSize(res.CompressedSize()),
			"format": opts.OutputFormat,
		}).Debug("Image compressed")
	}
	return res, nil
}

// fitDimensions scales (width, height) down to fit within (maxWidth,
// maxHeight) with a single ratio so aspect ratio is preserved. Dimensions
// already inside the box are returned unchanged; there is no upscaling.
func fitDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	ratio := math.Min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// encodeImage encodes img to the requested MIME type. Quality is mapped to
// the 0-100 scale the underlying encoders expect.
func encodeImage(img image.Image, format string, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	q := int(math.Round(quality * 100))

	switch format {
	case "image/webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(q)}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	case "image/jpeg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	case "image/png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}
