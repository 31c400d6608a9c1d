package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want string
	}{
		{"zero bytes", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"last byte tier", 1023, "1023 B"},
		{"exact kilobyte", 1024, "1.0 KB"},
		{"kilobytes", 2048, "2.0 KB"},
		{"rounded kilobytes", 1536, "1.5 KB"},
		{"last kilobyte tier", 1048575, "1024.0 KB"},
		{"megabytes", 1572864, "1.5 MB"},
		{"large megabytes", 52428800, "50.0 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFileSize(tt.size))
		})
	}
}
