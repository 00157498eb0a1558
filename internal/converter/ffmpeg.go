package converter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// FFmpeg extracts audio tracks with the ffmpeg binary.
type FFmpeg struct {
	path string

	once      sync.Once
	available bool
}

// NewFFmpeg returns an extractor using the binary at path ("ffmpeg" to search PATH).
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

// Available reports whether the ffmpeg binary can be found. The lookup runs once.
func (f *FFmpeg) Available() bool {
	f.once.Do(func() {
		_, err := exec.LookPath(f.path)
		f.available = err == nil
	})
	return f.available
}

// ExtractAudio writes the audio track of inputPath to outputPath as
// 128 kbps, 44.1 kHz MP3.
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.path, ffmpegArgs(inputPath, outputPath)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLines(string(out), 5))
	}
	return nil
}

func ffmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", "128k",
		"-ar", "44100",
		"-y",
		outputPath,
	}
}

// lastLines keeps the tail of ffmpeg's output, where the actual error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
