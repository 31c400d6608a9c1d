package compressor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// videoCodec describes one negotiable container/codec pair.
type videoCodec struct {
	Encoder      string // ffmpeg -c:v value
	AudioEncoder string // ffmpeg -c:a value
	Extension    string
	MIMEType     string
}

// codecPriority is probed in order: prefer the modern codec, fall back to
// the widely supported one, fall back to the bare MPEG-4 container codec.
var codecPriority = []videoCodec{
	{Encoder: "libvpx-vp9", AudioEncoder: "libopus", Extension: ".webm", MIMEType: "video/webm"},
	{Encoder: "libx264", AudioEncoder: "aac", Extension: ".mp4", MIMEType: "video/mp4"},
	{Encoder: "mpeg4", AudioEncoder: "aac", Extension: ".mp4", MIMEType: "video/mp4"},
}

// FFmpegError is an error from running ffmpeg, including its stderr tail.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// videoInfo holds the probed attributes of a video stream.
type videoInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds
}

// probeVideo reads width, height and duration of the first video stream
// using ffprobe.
func probeVideo(ctx context.Context, ffprobePath, path string) (videoInfo, error) {
	var info videoInfo
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return info, ctx.Err()
		}
		return info, fmt.Errorf("%w: ffprobe: %v, stderr: %s", ErrLoad, err, stderr.String())
	}
	if _, err := fmt.Sscan(stdout.String(), &info.Width, &info.Height, &info.Duration); err != nil {
		return info, fmt.Errorf("%w: parse ffprobe output %q: %v", ErrLoad, stdout.String(), err)
	}
	if info.Width <= 0 || info.Height <= 0 || info.Duration <= 0 {
		return info, fmt.Errorf("%w: implausible stream attributes %+v", ErrLoad, info)
	}
	return info, nil
}

// negotiateCodec picks the first codec from codecPriority whose encoder the
// local ffmpeg build supports.
func negotiateCodec(ctx context.Context, ffmpegPath string) (videoCodec, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return videoCodec{}, fmt.Errorf("%w: list encoders: %v", ErrSurface, err)
	}
	return pickCodec(stdout.String())
}

// pickCodec matches the encoder list output against codecPriority. Encoder
// names in the listing are surrounded by spaces, which keeps e.g. "libx264"
// from matching "libx264rgb" entries only.
func pickCodec(encoderList string) (videoCodec, error) {
	for _, c := range codecPriority {
		if strings.Contains(encoderList, " "+c.Encoder+" ") {
			return c, nil
		}
	}
	return videoCodec{}, fmt.Errorf("%w: no supported video encoder found", ErrSurface)
}

// parseFFmpegTime parses the HH:MM:SS.cc timestamps ffmpeg prints while
// processing and returns seconds.
func parseFFmpegTime(ts string) float64 {
	var hours, minutes, seconds, centis int
	fmt.Sscanf(ts, "%d:%d:%d.%d", &hours, &minutes, &seconds, &centis)
	return float64(centis)/100 + float64(seconds+minutes*60+hours*3600)
}

// parseProgressLine extracts the processed media time from one ffmpeg status
// line. It reports false when the line carries no "time=" field.
func parseProgressLine(line string) (float64, bool) {
	idx := strings.LastIndex(line, "time=")
	if idx == -1 {
		return 0, false
	}
	ts := line[idx+len("time="):]
	if sp := strings.IndexByte(ts, ' '); sp != -1 {
		ts = ts[:sp]
	}
	ts = strings.TrimSpace(ts)
	if ts == "" || ts == "N/A" {
		return 0, false
	}
	return parseFFmpegTime(ts), true
}

// progressReporter turns processed-duration updates into the clamped,
// non-decreasing percentage sequence the caller observes: values stay in
// [0, 99] until Finish emits the single terminal 100.
type progressReporter struct {
	total    float64 // seconds
	last     int
	callback ProgressFunc
}

func newProgressReporter(totalSeconds float64, cb ProgressFunc) *progressReporter {
	return &progressReporter{total: totalSeconds, last: -1, callback: cb}
}

// Update reports progress for the given processed media time.
func (p *progressReporter) Update(processedSeconds float64) {
	if p.callback == nil || p.total <= 0 {
		return
	}
	percent := int(processedSeconds / p.total * 100)
	if percent > 99 {
		percent = 99
	}
	if percent < 0 {
		percent = 0
	}
	if percent <= p.last {
		return
	}
	p.last = percent
	p.callback(percent)
}

// Finish emits the terminal 100.
func (p *progressReporter) Finish() {
	if p.callback == nil {
		return
	}
	p.last = 100
	p.callback(100)
}

// runTranscode starts ffmpeg with the given arguments and feeds its status
// lines to report as they arrive. ffmpeg writes status updates to stderr
// terminated by carriage returns.
func runTranscode(ctx context.Context, ffmpegPath string, args []string, report func(line string)) error {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrSurface, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrSurface, err)
	}

	var tail string
	reader := bufio.NewReader(stderr)
	for {
		line, err := readStatusLine(reader)
		if line != "" {
			tail = line
			report(line)
		}
		if err != nil {
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transcode cancelled: %w", ctx.Err())
		}
		return &FFmpegError{Args: args, Stderr: tail, Err: err}
	}
	return nil
}

// readStatusLine reads up to the next carriage return or newline so both
// ffmpeg status updates and regular log lines come through.
func readStatusLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return b.String(), err
		}
		if c == '\r' || c == '\n' {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}
