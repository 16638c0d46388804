package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Decoder normalizes an uploaded audio file for speech recognition.
type Decoder interface {
	// Decode converts the source file into a mono 16kHz 16-bit PCM WAV file
	// at dest. The returned error carries the decoder's diagnostic output.
	Decode(ctx context.Context, source, dest string) error
}

// FFmpegDecoder implements Decoder by shelling out to ffmpeg.
type FFmpegDecoder struct {
	binary string
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewFFmpegDecoder creates a decoder using the given ffmpeg binary. An empty
// binary falls back to "ffmpeg" on PATH.
func NewFFmpegDecoder(binary string) *FFmpegDecoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegDecoder{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *FFmpegDecoder) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	d.runner = runner
}

// Decode converts source into a Vosk/Whisper-compatible WAV file at dest.
func (d *FFmpegDecoder) Decode(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	output, err := d.run(ctx, d.binary, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (d *FFmpegDecoder) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.runner != nil {
		return d.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
