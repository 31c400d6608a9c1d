package statistics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-press-go/internal/compressor"
)

// Statistics aggregates counters for one compression run. Counter fields
// are updated atomically so workers can report concurrently.
type Statistics struct {
	FilesFound       int64
	FilesProcessed   int64
	ImagesCompressed int64
	VideosCompressed int64
	PassedThrough    int64
	FilesSkipped     int64
	FilesWithErrors  int64

	BytesIn  int64
	BytesOut int64

	StartTime time.Time
	EndTime   time.Time

	mutex         sync.RWMutex
	errors        []ProcessError
	fileTypeStats map[string]int64
}

// ProcessError records one failed file.
type ProcessError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		fileTypeStats: make(map[string]int64),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.FilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementImagesCompressed increases the count of compressed images by 1.
func (s *Statistics) IncrementImagesCompressed() {
	atomic.AddInt64(&s.ImagesCompressed, 1)
}

// IncrementVideosCompressed increases the count of transcoded videos by 1.
func (s *Statistics) IncrementVideosCompressed() {
	atomic.AddInt64(&s.VideosCompressed, 1)
}

// IncrementPassedThrough increases the count of under-threshold pass-throughs by 1.
func (s *Statistics) IncrementPassedThrough() {
	atomic.AddInt64(&s.PassedThrough, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesWithErrors increases the count of failed files by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// AddBytes records the byte sizes of one compression.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// AddFileType records one encountered MIME type.
func (s *Statistics) AddFileType(mimeType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.fileTypeStats[mimeType]++
}

// AddError records a failed file.
func (s *Statistics) AddError(filePath, operation string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.errors = append(s.errors, ProcessError{
		FilePath:  filePath,
		Operation: operation,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

// Errors returns a copy of the recorded errors.
func (s *Statistics) Errors() []ProcessError {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]ProcessError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Finish marks the end of the run.
func (s *Statistics) Finish() {
	s.EndTime = time.Now()
}

// SavedBytes returns the total number of bytes removed by compression.
func (s *Statistics) SavedBytes() int64 {
	return atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
}

// GetSummary returns a human-readable report of the run.
func (s *Statistics) GetSummary() string {
	var b strings.Builder

	duration := time.Since(s.StartTime)
	if !s.EndTime.IsZero() {
		duration = s.EndTime.Sub(s.StartTime)
	}

	fmt.Fprintf(&b, "Files found:       %d\n", atomic.LoadInt64(&s.FilesFound))
	fmt.Fprintf(&b, "Files processed:   %d\n", atomic.LoadInt64(&s.FilesProcessed))
	fmt.Fprintf(&b, "Images compressed: %d\n", atomic.LoadInt64(&s.ImagesCompressed))
	fmt.Fprintf(&b, "Videos transcoded: %d\n", atomic.LoadInt64(&s.VideosCompressed))
	fmt.Fprintf(&b, "Passed through:    %d\n", atomic.LoadInt64(&s.PassedThrough))
	fmt.Fprintf(&b, "Skipped:           %d\n", atomic.LoadInt64(&s.FilesSkipped))
	fmt.Fprintf(&b, "Errors:            %d\n", atomic.LoadInt64(&s.FilesWithErrors))
	fmt.Fprintf(&b, "Bytes in:          %s\n", compressor.FormatFileSize(atomic.LoadInt64(&s.BytesIn)))
	fmt.Fprintf(&b, "Bytes out:         %s\n", compressor.FormatFileSize(atomic.LoadInt64(&s.BytesOut)))
	fmt.Fprintf(&b, "Saved:             %s\n", compressor.FormatFileSize(s.SavedBytes()))
	fmt.Fprintf(&b, "Duration:          %s", duration.Round(time.Millisecond))

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if len(s.fileTypeStats) > 0 {
		b.WriteString("\nFile types:")
		for mime, count := range s.fileTypeStats {
			fmt.Fprintf(&b, "\n  %s: %d", mime, count)
		}
	}

	return b.String()
}
