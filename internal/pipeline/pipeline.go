// Package pipeline runs batch compression over local directories: it walks
// the configured sources, pushes every media file through the compression
// core with a bounded worker pool, and writes the outputs to the target
// directory (optionally uploading them to the media host).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"media-press-go/internal/compressor"
	"media-press-go/internal/config"
	"media-press-go/internal/mediahost"
	"media-press-go/internal/statistics"
)

// mediaExtensions lists the file types the walker picks up. Everything else
// is left untouched.
var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
}

// FileResult describes the outcome of processing one file.
type FileResult struct {
	InputPath      string
	OutputPath     string
	MIMEType       string
	Action         string // "image", "video", "passthrough", "skipped", "error"
	OriginalSize   int64
	CompressedSize int64
	AssetID        string
	Err            error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Pipeline wires the compression core to the filesystem.
type Pipeline struct {
	cfg      *config.Config
	log      *logrus.Logger
	stats    *statistics.Statistics
	images   *compressor.ImageCompressor
	videos   *compressor.VideoCompressor
	uploader *mediahost.Client
}

// New creates a Pipeline. uploader may be nil when no media host is
// configured.
func New(cfg *config.Config, log *logrus.Logger, stats *statistics.Statistics,
	images *compressor.ImageCompressor, videos *compressor.VideoCompressor,
	uploader *mediahost.Client) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		log:      log,
		stats:    stats,
		images:   images,
		videos:   videos,
		uploader: uploader,
	}
}

// Run processes every media file under the configured source directories
// and returns per-file results in input order.
func (p *Pipeline) Run(ctx context.Context) ([]FileResult, error) {
	files := collectMediaFiles(p.cfg.SourceDirectories)
	for range files {
		p.stats.IncrementFilesFound()
	}
	if len(files) == 0 {
		return nil, nil
	}

	if p.cfg.TargetDirectory != "" {
		if err := os.MkdirAll(p.cfg.TargetDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("create target dir: %w", err)
		}
	}

	numWorkers := p.cfg.Performance.WorkerThreads
	if numWorkers < 1 {
		numWorkers = 1
	}

	type job struct {
		index int
		path  string
	}
	type indexed struct {
		index int
		res   FileResult
	}

	jobs := make(chan job, len(files))
	results := make(chan indexed, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				// After cancellation remaining jobs are drained as
				// skipped so every input still gets a result entry.
				if err := ctx.Err(); err != nil {
					p.stats.IncrementFilesSkipped()
					results <- indexed{index: j.index, res: FileResult{
						InputPath: j.path,
						Action:    "skipped",
						Err:       err,
					}}
					continue
				}
				results <- indexed{index: j.index, res: p.processOne(ctx, j.path)}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]FileResult, len(files))
	for r := range results {
		out[r.index] = r.res
	}
	p.stats.Finish()
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// processOne compresses a single file and writes the output next to the
// configured target directory.
func (p *Pipeline) processOne(ctx context.Context, inputPath string) FileResult {
	res := FileResult{
		InputPath: inputPath,
		StartedAt: time.Now(),
	}
	defer func() { res.FinishedAt = time.Now() }()

	src, err := os.ReadFile(inputPath)
	if err != nil {
		return p.fail(res, "read", err)
	}
	res.OriginalSize = int64(len(src))

	mime := mimetype.Detect(src).String()
	res.MIMEType = mime
	p.stats.AddFileType(mime)
	p.stats.IncrementFilesProcessed()

	var compressed *compressor.Result
	switch {
	case strings.HasPrefix(mime, "image/"):
		compressed, err = p.images.Compress(ctx, src, compressor.ImageOptions{
			MaxWidth:     p.cfg.Image.MaxWidth,
			MaxHeight:    p.cfg.Image.MaxHeight,
			Quality:      p.cfg.Image.Quality,
			OutputFormat: p.cfg.Image.OutputFormat,
		})
		if err != nil {
			return p.fail(res, "image", err)
		}
		res.Action = "image"
		p.stats.IncrementImagesCompressed()

	case strings.HasPrefix(mime, "video/"):
		compressed, err = p.videos.Compress(ctx, src, compressor.VideoOptions{
			MaxSizeMB:    p.cfg.Video.MaxSizeMB,
			VideoBitrate: p.cfg.Video.VideoBitrate,
			MaxWidth:     p.cfg.Video.MaxWidth,
			FrameRate:    p.cfg.Video.FrameRate,
		})
		if err != nil {
			return p.fail(res, "video", err)
		}
		if compressed.PassedThrough {
			res.Action = "passthrough"
			p.stats.IncrementPassedThrough()
		} else {
			res.Action = "video"
			p.stats.IncrementVideosCompressed()
		}

	default:
		res.Action = "skipped"
		p.stats.IncrementFilesSkipped()
		return res
	}

	res.CompressedSize = compressed.CompressedSize()
	p.stats.AddBytes(res.OriginalSize, res.CompressedSize)

	outPath := p.outputPath(inputPath, compressed.MIMEType)
	if outPath != "" {
		if err := os.WriteFile(outPath, compressed.Data, 0o644); err != nil {
			return p.fail(res, "write", err)
		}
		res.OutputPath = outPath
	}

	if p.uploader != nil {
		asset, err := p.uploader.Upload(ctx, filepath.Base(p.outputName(inputPath, compressed.MIMEType)), compressed.MIMEType, compressed.Data)
		if err != nil {
			return p.fail(res, "upload", err)
		}
		res.AssetID = asset.PublicID
	}

	if p.log != nil {
		p.log.WithFields(logrus.Fields{
			"file":   inputPath,
			"action": res.Action,
			"before": compressor.FormatFileSize(res.OriginalSize),
			"after":  compressor.FormatFileSize(res.CompressedSize),
		}).Info("File processed")
	}
	return res
}

func (p *Pipeline) fail(res FileResult, operation string, err error) FileResult {
	res.Action = "error"
	res.Err = err
	p.stats.IncrementFilesWithErrors()
	p.stats.AddError(res.InputPath, operation, err)
	if p.log != nil {
		p.log.WithFields(logrus.Fields{
			"file":      res.InputPath,
			"operation": operation,
		}).WithError(err).Error("File processing failed")
	}
	return res
}

// outputPath builds the target path for a compressed file, swapping the
// extension to match the output MIME type. Empty when no target directory
// is configured.
func (p *Pipeline) outputPath(inputPath, mime string) string {
	if p.cfg.TargetDirectory == "" {
		return ""
	}
	return filepath.Join(p.cfg.TargetDirectory, p.outputName(inputPath, mime))
}

func (p *Pipeline) outputName(inputPath, mime string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + extensionForMIME(mime, ext)
}

// extensionForMIME maps output MIME types to file extensions, keeping the
// original extension for pass-through payloads of unknown type.
func extensionForMIME(mime, fallback string) string {
	switch mime {
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/webm":
		return ".webm"
	case "video/mp4", "video/x-m4v":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	default:
		return fallback
	}
}

// collectMediaFiles recursively collects all files with supported media
// extensions under the given paths.
func collectMediaFiles(inputPaths []string) []string {
	var files []string
	visit := func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := mediaExtensions[ext]; ok {
			files = append(files, path)
		}
		return nil
	}
	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			continue
		}
		if info.IsDir() {
			_ = filepath.WalkDir(in, visit)
			continue
		}
		ext := strings.ToLower(filepath.Ext(info.Name()))
		if _, ok := mediaExtensions[ext]; ok {
			files = append(files, in)
		}
	}
	return files
}
