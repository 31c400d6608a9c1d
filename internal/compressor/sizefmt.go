package compressor

import "fmt"

const (
	kilobyte = 1024
	megabyte = 1024 * 1024
)

// FormatFileSize renders a byte count as a short human-readable string:
// exact bytes below 1 KB, otherwise KB or MB with one decimal.
func FormatFileSize(size int64) string {
	switch {
	case size < kilobyte:
		return fmt.Sprintf("%d B", size)
	case size < megabyte:
		return fmt.Sprintf("%.1f KB", float64(size)/kilobyte)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/megabyte)
	}
}
