package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "base.en"

// WhisperTranscriber runs a whisper-compatible CLI that writes JSON output
// with time-aligned segments.
type WhisperTranscriber struct {
	binary   string
	model    string
	language string
	runner   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewWhisperTranscriber creates a transcriber invoking the given binary.
func NewWhisperTranscriber(binary, model, language string) *WhisperTranscriber {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = DefaultModel
	}
	return &WhisperTranscriber{
		binary:   binary,
		model:    model,
		language: language,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperTranscriber) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	w.runner = runner
}

// Ready reports whether the transcription CLI is resolvable. With a custom
// runner installed the backend is considered ready.
func (w *WhisperTranscriber) Ready() bool {
	if w.runner != nil {
		return true
	}
	_, err := exec.LookPath(w.binary)
	return err == nil
}

// Transcribe runs the CLI on the audio file and joins the text of the JSON
// segments it produces.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	outputDir, err := os.MkdirTemp("", "whisper-out-")
	if err != nil {
		return "", fmt.Errorf("transcribe: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := []string{
		path,
		"--model", w.model,
		"--output_dir", outputDir,
		"--output_format", "json",
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}

	if output, err := w.run(ctx, w.binary, args...); err != nil {
		return "", fmt.Errorf("%s: %w: %s", w.binary, err, strings.TrimSpace(string(output)))
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	return loadTranscriptText(jsonPath)
}

func (w *WhisperTranscriber) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if w.runner != nil {
		return w.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Segment is a time-aligned portion of the transcript from the CLI output.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperPayload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// loadTranscriptText reads the CLI's JSON output and concatenates the segment
// texts. It falls back to the top-level text field when no segments exist.
func loadTranscriptText(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: read output: %w", err)
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("transcribe: parse output json: %w", err)
	}

	var parts []string
	for _, seg := range payload.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(payload.Text), nil
	}
	return strings.Join(parts, " "), nil
}
