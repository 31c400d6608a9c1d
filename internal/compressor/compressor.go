// Package compressor implements the media compression pipeline used by the
// storefront upload flows: an image compressor that downscales and re-encodes
// pictures, and a video compressor that transcodes clips to a target bitrate.
package compressor

import (
	"errors"
	"fmt"
)

// Static errors returned by the compressors.
var (
	// ErrDecode is returned when the input cannot be decoded as an image.
	ErrDecode = errors.New("compressor: cannot decode input as image")
	// ErrEncode is returned when the encoder produced no output.
	ErrEncode = errors.New("compressor: encoder produced no output")
	// ErrLoad is returned when the input cannot be read as a playable video.
	ErrLoad = errors.New("compressor: cannot load input as video")
	// ErrSurface is returned when the transcode backend or its temporary
	// workspace is unavailable.
	ErrSurface = errors.New("compressor: transcode surface unavailable")
	// ErrUnsupportedFormat is returned when the requested output format has
	// no registered encoder.
	ErrUnsupportedFormat = errors.New("compressor: unsupported output format")
)

// ProgressFunc receives a percentage in [0, 100] as compression proceeds.
// Reported values are non-decreasing and the final call is always 100.
type ProgressFunc func(percent int)

// Result is the outcome of a single compression call. Data is always a
// payload the caller may keep; the source bytes are never mutated.
type Result struct {
	Data          []byte
	MIMEType      string
	Width         int
	Height        int
	OriginalSize  int64
	PassedThrough bool
}

// CompressedSize returns the size of the output payload in bytes.
func (r *Result) CompressedSize() int64 {
	return int64(len(r.Data))
}

// SavedPercent returns the share of bytes removed by compression.
func (r *Result) SavedPercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.CompressedSize()) * 100 / float64(r.OriginalSize)
}

// String summarizes the result for logs.
func (r *Result) String() string {
	return fmt.Sprintf("%s %dx%d %s -> %s",
		r.MIMEType, r.Width, r.Height,
		FormatFileSize(r.OriginalSize), FormatFileSize(r.CompressedSize()))
}
