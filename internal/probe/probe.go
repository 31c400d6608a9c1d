// Package probe inspects media files: MIME type from magic bytes, pixel
// dimensions, video duration, and EXIF capture metadata.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/barasher/go-exiftool"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Info describes everything learned about one media file.
type Info struct {
	Path     string
	Size     int64
	MIMEType string
	Width    int
	Height   int
	Duration float64    // seconds, video only
	TakenAt  *time.Time // EXIF capture date, when present
}

// IsImage reports whether the sniffed MIME type is an image.
func (i *Info) IsImage() bool {
	return strings.HasPrefix(i.MIMEType, "image/")
}

// IsVideo reports whether the sniffed MIME type is a video.
func (i *Info) IsVideo() bool {
	return strings.HasPrefix(i.MIMEType, "video/")
}

// Prober inspects media files. The ffprobe binary is only invoked for
// videos.
type Prober struct {
	ffprobePath string
}

// NewProber creates a Prober. An empty path defaults to "ffprobe" found via
// PATH.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// Inspect reads the file's attributes. Unknown or unsupported media yields
// an Info with only size and MIME type filled in.
func (p *Prober) Inspect(ctx context.Context, path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media file: %w", err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect mime type: %w", err)
	}

	info := &Info{
		Path:     path,
		Size:     stat.Size(),
		MIMEType: mime.String(),
	}

	switch {
	case info.IsImage():
		p.inspectImage(path, info)
	case info.IsVideo():
		if err := p.inspectVideo(ctx, path, info); err != nil {
			return nil, err
		}
	}

	return info, nil
}

func (p *Prober) inspectImage(path string, info *Info) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}

	if info.MIMEType == "image/jpeg" {
		info.TakenAt = captureDate(path)
	}
}

// captureDate reads the EXIF DateTimeOriginal tag from a JPEG file.
func captureDate(path string) *time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	taken, err := x.DateTime()
	if err != nil {
		return nil
	}
	return &taken
}

func (p *Prober) inspectVideo(ctx context.Context, path string, info *Info) error {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}
	if _, err := fmt.Sscan(stdout.String(), &info.Width, &info.Height, &info.Duration); err != nil {
		return fmt.Errorf("parse ffprobe output %q: %w", stdout.String(), err)
	}
	return nil
}

// Metadata extracts the full metadata field set using exiftool. It is best
// effort: a missing exiftool binary yields an error the caller may ignore.
func Metadata(path string) (map[string]string, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	fields := make(map[string]string, len(files[0].Fields))
	for key, value := range files[0].Fields {
		fields[key] = fmt.Sprintf("%v", value)
	}
	return fields, nil
}
