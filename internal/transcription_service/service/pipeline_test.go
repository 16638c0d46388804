package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/ner"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/store"
)

// fakeDecoder writes an empty WAV stand-in to dest, or fails.
type fakeDecoder struct {
	err error
}

func (d *fakeDecoder) Decode(ctx context.Context, source, dest string) error {
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

// fakeTranscriber returns a canned transcript.
type fakeTranscriber struct {
	ready      bool
	transcript string
	err        error
	block      chan struct{} // when set, Transcribe waits until closed
}

func (t *fakeTranscriber) Ready() bool { return t.ready }

func (t *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return t.transcript, t.err
}

// fakeExtractor returns canned entities or an error.
type fakeExtractor struct {
	entities map[string]string
	err      error
}

func (e *fakeExtractor) Ready() bool { return true }

func (e *fakeExtractor) Extract(text string) (map[string]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.entities != nil {
		return e.entities, nil
	}
	return map[string]string{"diagnosis": "", "treatment": "", "extraction_method": "lexical"}, nil
}

func writeUpload(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*.wav")
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	f.Close()
	return f.Name()
}

func newTestPipeline(r store.TaskRegistry, d *fakeDecoder, tr *fakeTranscriber, e ner.Extractor) *Pipeline {
	return NewPipeline(r, d, tr, e, nil, 0)
}

func TestPipeline_SuccessPath(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	tr := &fakeTranscriber{ready: true, transcript: "the dog has fever and fleas prescribed antibiotics"}
	p := newTestPipeline(r, &fakeDecoder{}, tr, ner.NewLexicalExtractor())

	upload := writeUpload(t, "fake audio bytes")
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", upload)

	task, err := r.Get("t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", task.Status, task.CurrentStage)
	}
	if task.OverallProgress != 100 {
		t.Errorf("Expected progress 100, got %d", task.OverallProgress)
	}
	if task.Result == nil {
		t.Fatal("Expected result to be attached")
	}
	if task.Result.Transcript != tr.transcript {
		t.Errorf("Unexpected transcript: %q", task.Result.Transcript)
	}
	if !strings.Contains(task.Result.Entities["diagnosis"], "fever") {
		t.Errorf("Expected fever in diagnosis entities, got %q", task.Result.Entities["diagnosis"])
	}
	if task.Result.Diagnosis == "" || task.Result.Treatment == "" {
		t.Error("Expected advisory diagnosis and treatment text")
	}

	wantStages := []string{
		store.StageStarted,
		"file_preparation", "file_preparation",
		"audio_conversion", "audio_conversion",
		"model_loading", "model_loading",
		"transcription", "transcription", "transcription",
		"ner_processing", "ner_processing",
		"final_processing",
		store.StageCompleted,
	}
	if len(task.Stages) != len(wantStages) {
		t.Fatalf("Expected %d stage records, got %d", len(wantStages), len(task.Stages))
	}
	for i, rec := range task.Stages {
		if rec.Stage != wantStages[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, wantStages[i], rec.Stage)
		}
	}

	// Progress is non-decreasing across the whole run.
	prev := 0
	for _, rec := range task.Stages {
		if rec.Progress < prev {
			t.Errorf("Progress decreased from %d to %d at %s", prev, rec.Progress, rec.Stage)
		}
		prev = rec.Progress
	}
}

func TestPipeline_MissingFile(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	p := newTestPipeline(r, &fakeDecoder{}, &fakeTranscriber{ready: true, transcript: "hi"}, &fakeExtractor{})
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", filepath.Join(t.TempDir(), "missing.wav"))

	assertErrored(t, r, "t1", "Audio file not found", "validation")
}

func TestPipeline_EmptyFile(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	p := newTestPipeline(r, &fakeDecoder{}, &fakeTranscriber{ready: true, transcript: "hi"}, &fakeExtractor{})
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", writeUpload(t, ""))

	assertErrored(t, r, "t1", "Audio file is empty", "validation")
}

func TestPipeline_DecodeFailure(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	d := &fakeDecoder{err: errors.New("ffmpeg decode: exit status 1: Invalid data")}
	p := newTestPipeline(r, d, &fakeTranscriber{ready: true, transcript: "hi"}, &fakeExtractor{})
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", writeUpload(t, "data"))

	assertErrored(t, r, "t1", "Audio conversion failed", "decode")
}

func TestPipeline_ModelNotReady(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	p := newTestPipeline(r, &fakeDecoder{}, &fakeTranscriber{ready: false}, &fakeExtractor{})
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", writeUpload(t, "data"))

	assertErrored(t, r, "t1", "model not loaded", "model_unavailable")
}

func TestPipeline_BlankTranscript(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	p := newTestPipeline(r, &fakeDecoder{}, &fakeTranscriber{ready: true, transcript: "   \n"}, &fakeExtractor{})
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", writeUpload(t, "data"))

	assertErrored(t, r, "t1", "no speech detected", "transcription")

	task, _ := r.Get("t1")
	if task.Result != nil {
		t.Error("No result may be attached after a transcription failure")
	}
}

func TestPipeline_ExtractionFailureDiscardsTranscript(t *testing.T) {
	r := store.NewMemoryTaskRegistry()
	e := &fakeExtractor{err: errors.New("model crashed")}
	p := newTestPipeline(r, &fakeDecoder{}, &fakeTranscriber{ready: true, transcript: "the cat has worms"}, e)
	_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

	p.Run(context.Background(), "t1", writeUpload(t, "data"))

	assertErrored(t, r, "t1", "Entity extraction failed", "extraction")

	task, _ := r.Get("t1")
	if task.Result != nil {
		t.Error("Partial transcript must not be surfaced as a result")
	}
	last := task.Stages[len(task.Stages)-1]
	if last.Details["transcript_chars"] != len("the cat has worms") {
		t.Errorf("Expected transcript_chars in error details, got %v", last.Details)
	}
}

func TestPipeline_CleanupOnEveryExit(t *testing.T) {
	tests := []struct {
		name        string
		transcriber *fakeTranscriber
	}{
		{"success", &fakeTranscriber{ready: true, transcript: "fever"}},
		{"model not loaded", &fakeTranscriber{ready: false}},
		{"no speech", &fakeTranscriber{ready: true, transcript: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := store.NewMemoryTaskRegistry()
			p := newTestPipeline(r, &fakeDecoder{}, tt.transcriber, ner.NewLexicalExtractor())
			_ = r.CreateIfAbsent("t1", store.StageStarted, 0, "Task started", nil)

			upload := writeUpload(t, "data")
			p.Run(context.Background(), "t1", upload)

			if _, err := os.Stat(upload); !os.IsNotExist(err) {
				t.Errorf("Upload not cleaned up: %v", err)
			}
			if _, err := os.Stat(upload + ".converted.wav"); !os.IsNotExist(err) {
				t.Errorf("Converted file not cleaned up: %v", err)
			}
		})
	}
}

func assertErrored(t *testing.T, r store.TaskRegistry, taskID, wantMessage, wantKind string) {
	t.Helper()
	task, err := r.Get(taskID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.Status != models.TaskStatusError {
		t.Fatalf("Expected error status, got %s", task.Status)
	}
	if task.OverallProgress != 0 {
		t.Errorf("Expected progress 0 after error, got %d", task.OverallProgress)
	}
	last := task.Stages[len(task.Stages)-1]
	if last.Stage != store.StageError || last.Progress != 0 {
		t.Errorf("Expected terminal error record with progress 0, got %+v", last)
	}
	if !strings.Contains(last.Message, wantMessage) {
		t.Errorf("Expected message containing %q, got %q", wantMessage, last.Message)
	}
	if last.Details["error_kind"] != wantKind {
		t.Errorf("Expected error_kind %q, got %v", wantKind, last.Details["error_kind"])
	}
}
