package compressor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// Video compression defaults, matching the storefront upload forms.
const (
	DefaultMaxSizeMB      = 20
	DefaultVideoBitrate   = 1_500_000
	DefaultVideoMaxWidth  = 1280
	DefaultVideoFrameRate = 30
)

// VideoOptions configures a single video compression call.
type VideoOptions struct {
	// MaxSizeMB is the pass-through threshold: a source at or below this
	// size is returned unchanged without transcoding.
	MaxSizeMB int
	// VideoBitrate is the target bitrate in bits per second.
	VideoBitrate int
	// MaxWidth caps the horizontal resolution; height follows the aspect
	// ratio. Zero means the default 1280.
	MaxWidth int
	// FrameRate is the output frame rate. Zero means the default 30.
	FrameRate int
	// OnProgress, when set, receives percentage updates during transcoding.
	OnProgress ProgressFunc
}

// DefaultVideoOptions returns the options used by the upload forms.
func DefaultVideoOptions() VideoOptions {
	return VideoOptions{
		MaxSizeMB:    DefaultMaxSizeMB,
		VideoBitrate: DefaultVideoBitrate,
		MaxWidth:     DefaultVideoMaxWidth,
		FrameRate:    DefaultVideoFrameRate,
	}
}

func (o *VideoOptions) normalize() {
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = DefaultMaxSizeMB
	}
	if o.VideoBitrate <= 0 {
		o.VideoBitrate = DefaultVideoBitrate
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultVideoMaxWidth
	}
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultVideoFrameRate
	}
}

// VideoCompressor transcodes videos to a target bitrate using the ffmpeg
// CLI, capping horizontal resolution and reporting progress from the media
// time processed. Sources already below the size threshold pass through
// unchanged.
type VideoCompressor struct {
	log         *logrus.Logger
	ffmpegPath  string
	ffprobePath string
	tempDir     string

	codecMu    sync.Mutex
	codec      videoCodec
	codecKnown bool
}

// NewVideoCompressor creates a new VideoCompressor. Empty paths default to
// "ffmpeg" and "ffprobe" found via PATH; an empty tempDir uses the system
// temporary directory.
func NewVideoCompressor(log *logrus.Logger, ffmpegPath, ffprobePath, tempDir string) *VideoCompressor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &VideoCompressor{
		log:         log,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
	}
}

// Codec returns the negotiated container/codec pair, probing encoder
// support once per compressor.
func (c *VideoCompressor) Codec(ctx context.Context) (string, string, error) {
	codec, err := c.negotiatedCodec(ctx)
	if err != nil {
		return "", "", err
	}
	return codec.Encoder, codec.MIMEType, nil
}

// negotiatedCodec caches a successful probe for the compressor's lifetime.
// Failures are not cached: a probe interrupted by a cancelled context must
// not doom later calls that arrive with a live one.
func (c *VideoCompressor) negotiatedCodec(ctx context.Context) (videoCodec, error) {
	c.codecMu.Lock()
	defer c.codecMu.Unlock()
	if c.codecKnown {
		return c.codec, nil
	}
	codec, err := negotiateCodec(ctx, c.ffmpegPath)
	if err != nil {
		return videoCodec{}, err
	}
	c.codec = codec
	c.codecKnown = true
	return c.codec, nil
}

// Compress transcodes src according to opts. When the source is already at
// or below the size threshold it is returned unchanged and the progress
// callback fires exactly once with 100.
func (c *VideoCompressor) Compress(ctx context.Context, src []byte, opts VideoOptions) (*Result, error) {
	opts.normalize()

	srcSize := int64(len(src))
	if srcSize <= int64(opts.MaxSizeMB)*megabyte {
		if opts.OnProgress != nil {
			opts.OnProgress(100)
		}
		if c.log != nil {
			c.log.WithFields(logrus.Fields{
				"size":      FormatFileSize(srcSize),
				"threshold": fmt.Sprintf("%d MB", opts.MaxSizeMB),
			}).Debug("Video under threshold, passing through")
		}
		return &Result{
			Data:          src,
			MIMEType:      mimetype.Detect(src).String(),
			OriginalSize:  srcSize,
			PassedThrough: true,
		}, nil
	}

	codec, err := c.negotiatedCodec(ctx)
	if err != nil {
		return nil, err
	}

	// Each call owns its workspace and releases it on every exit path.
	workDir, err := os.MkdirTemp(c.tempDir, "media-press-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create workspace: %v", ErrSurface, err)
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "source"+mimetype.Detect(src).Extension())
	if err := os.WriteFile(inPath, src, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write source: %v", ErrSurface, err)
	}

	info, err := probeVideo(ctx, c.ffprobePath, inPath)
	if err != nil {
		return nil, err
	}

	width, height := renderDimensions(info.Width, info.Height, opts.MaxWidth)
	outPath := filepath.Join(workDir, "output"+codec.Extension)

	args := []string{
		"-y",
		"-i", inPath,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-r", strconv.Itoa(opts.FrameRate),
		"-c:v", codec.Encoder,
		"-b:v", strconv.Itoa(opts.VideoBitrate),
		"-pix_fmt", "yuv420p",
		"-c:a", codec.AudioEncoder,
		"-b:a", "128k",
		outPath,
	}

	reporter := newProgressReporter(info.Duration, opts.OnProgress)
	err = runTranscode(ctx, c.ffmpegPath, args, func(line string) {
		if processed, ok := parseProgressLine(line); ok {
			reporter.Update(processed)
		}
	})
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrEncode, err)
	}
	if len(data) == 0 {
		return nil, ErrEncode
	}

	// The output should last roughly as long as the source. A mismatch
	// points at a truncated encode, so surface it rather than hand back a
	// clipped clip.
	if out, err := probeVideo(ctx, c.ffprobePath, outPath); err == nil {
		if math.Abs(out.Duration-info.Duration) > durationTolerance(info.Duration) {
			return nil, fmt.Errorf("%w: duration mismatch: %.2fs -> %.2fs", ErrEncode, info.Duration, out.Duration)
		}
	}

	reporter.Finish()

	res := &Result{
		Data:         data,
		MIMEType:     codec.MIMEType,
		Width:        width,
		Height:       height,
		OriginalSize: srcSize,
	}
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"codec":    codec.Encoder,
			"width":    width,
			"height":   height,
			"duration": info.Duration,
			"before":   FormatFileSize(res.OriginalSize),
			"after":    FormatFileSize(res.CompressedSize()),
		}).Info("Video transcoded")
	}
	return res, nil
}

// renderDimensions caps the width at maxWidth, scales the height to keep
// the aspect ratio, and rounds both down to even values as the H.264 and
// VP9 encoders require.
func renderDimensions(srcWidth, srcHeight, maxWidth int) (int, int) {
	width := srcWidth
	if width > maxWidth {
		width = maxWidth
	}
	height := int(math.Round(float64(width) / float64(srcWidth) * float64(srcHeight)))
	if height < 2 {
		height = 2
	}
	width -= width % 2
	height -= height % 2
	return width, height
}

// durationTolerance allows one second of drift, or 5% for longer clips
// where container rounding adds up.
func durationTolerance(duration float64) float64 {
	return math.Max(1, duration*0.05)
}
