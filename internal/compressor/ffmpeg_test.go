package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFFmpegTime(t *testing.T) {
	tests := []struct {
		ts   string
		want float64
	}{
		{"00:00:00.00", 0},
		{"00:00:01.50", 1.5},
		{"00:01:15.25", 75.25},
		{"01:02:03.04", 3723.04},
	}

	for _, tt := range tests {
		t.Run(tt.ts, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseFFmpegTime(tt.ts), 0.001)
		})
	}
}

func TestParseProgressLine(t *testing.T) {
	t.Run("status line", func(t *testing.T) {
		line := "frame=  120 fps= 30 q=28.0 size=     512kB time=00:00:04.00 bitrate=1048.6kbits/s speed=1.2x"
		processed, ok := parseProgressLine(line)
		require.True(t, ok)
		assert.InDelta(t, 4.0, processed, 0.001)
	})

	t.Run("log line without timestamp", func(t *testing.T) {
		_, ok := parseProgressLine("Stream mapping:")
		assert.False(t, ok)
	})

	t.Run("time not yet known", func(t *testing.T) {
		_, ok := parseProgressLine("frame=    1 fps=0.0 q=0.0 size=       0kB time=N/A bitrate=N/A")
		assert.False(t, ok)
	})
}

func TestPickCodec(t *testing.T) {
	t.Run("prefers vp9", func(t *testing.T) {
		list := " V....D libvpx-vp9           libvpx VP9 (codec vp9)\n V..... libx264              libx264 H.264\n V..... mpeg4                MPEG-4 part 2"
		codec, err := pickCodec(list)
		require.NoError(t, err)
		assert.Equal(t, "libvpx-vp9", codec.Encoder)
		assert.Equal(t, "video/webm", codec.MIMEType)
		assert.Equal(t, ".webm", codec.Extension)
	})

	t.Run("falls back to h264", func(t *testing.T) {
		list := " V..... libx264              libx264 H.264\n V..... mpeg4                MPEG-4 part 2"
		codec, err := pickCodec(list)
		require.NoError(t, err)
		assert.Equal(t, "libx264", codec.Encoder)
		assert.Equal(t, "video/mp4", codec.MIMEType)
	})

	t.Run("falls back to mpeg4", func(t *testing.T) {
		codec, err := pickCodec(" V..... mpeg4                MPEG-4 part 2")
		require.NoError(t, err)
		assert.Equal(t, "mpeg4", codec.Encoder)
		assert.Equal(t, ".mp4", codec.Extension)
	})

	t.Run("no encoder available", func(t *testing.T) {
		_, err := pickCodec(" A..... aac                  AAC (Advanced Audio Coding)")
		assert.ErrorIs(t, err, ErrSurface)
	})

	t.Run("does not match substrings of other encoders", func(t *testing.T) {
		codec, err := pickCodec(" V..... libx264rgb           libx264 RGB\n V..... mpeg4                MPEG-4 part 2")
		require.NoError(t, err)
		assert.Equal(t, "mpeg4", codec.Encoder)
	})
}

func TestProgressReporterSequence(t *testing.T) {
	var reported []int
	rep := newProgressReporter(10, func(p int) { reported = append(reported, p) })

	rep.Update(0)
	rep.Update(2.5)
	rep.Update(2.5) // duplicate must not repeat
	rep.Update(5)
	rep.Update(9.99) // would be 99.9, clamps to 99
	rep.Update(15)   // past the end, still clamps to 99
	rep.Finish()

	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1], "final value must be exactly 100")

	for i, p := range reported[:len(reported)-1] {
		assert.GreaterOrEqual(t, p, 0)
		assert.LessOrEqual(t, p, 99, "only the final call may reach 100")
		if i > 0 {
			assert.Greater(t, p, reported[i-1], "sequence must be non-decreasing without repeats")
		}
	}
}

func TestProgressReporterNilCallback(t *testing.T) {
	rep := newProgressReporter(10, nil)
	// Must not panic.
	rep.Update(5)
	rep.Finish()
}

func TestProgressReporterUnknownDuration(t *testing.T) {
	var reported []int
	rep := newProgressReporter(0, func(p int) { reported = append(reported, p) })

	rep.Update(5)
	rep.Finish()

	assert.Equal(t, []int{100}, reported, "without a duration only the terminal call fires")
}
