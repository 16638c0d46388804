package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/audio"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/ner"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcriber"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/store"
	"github.com/jaiswal-naman/vet-scribe-ai/pkg/logger"
)

// Static advisory text attached to every completed result. The service
// surfaces candidate terms only; it does not perform clinical diagnosis.
const (
	advisoryDiagnosis = "Based on the transcription, please consult with a veterinarian for proper diagnosis."
	advisoryTreatment = "Treatment recommendations should be provided by a qualified veterinarian."
)

// errKind classifies a stage failure. The kind is recorded in the terminal
// error stage record's details.
type errKind string

const (
	errKindValidation       errKind = "validation"
	errKindDecode           errKind = "decode"
	errKindModelUnavailable errKind = "model_unavailable"
	errKindTranscription    errKind = "transcription"
	errKindExtraction       errKind = "extraction"
)

// stageError is the explicit failure value returned by stage functions.
// Stage failures never propagate to the submitter; the driver maps them to
// the task's terminal error record.
type stageError struct {
	kind    errKind
	message string
}

// Notifier receives stage updates as the pipeline advances.
type Notifier interface {
	Notify(update ProgressUpdate) bool
}

// Pipeline drives one task from its uploaded audio file to a terminal state,
// writing a stage record to the registry for every transition.
type Pipeline struct {
	registry    store.TaskRegistry
	decoder     audio.Decoder
	transcriber transcriber.Transcriber
	extractor   ner.Extractor
	notifier    Notifier
	stageDelay  time.Duration
}

// NewPipeline creates a pipeline over the given registry and collaborators.
// notifier may be nil. stageDelay inserts a pause between stages so polling
// clients can observe intermediate progress.
func NewPipeline(registry store.TaskRegistry, decoder audio.Decoder, t transcriber.Transcriber, extractor ner.Extractor, notifier Notifier, stageDelay time.Duration) *Pipeline {
	return &Pipeline{
		registry:    registry,
		decoder:     decoder,
		transcriber: t,
		extractor:   extractor,
		notifier:    notifier,
		stageDelay:  stageDelay,
	}
}

// Run executes all stages for the task. It never returns an error: every
// failure ends in a terminal error stage record visible through the progress
// query. Temporary files are released on every exit path.
func (p *Pipeline) Run(ctx context.Context, taskID, audioPath string) {
	taskLogger := logger.New("TranscriptionPipeline", taskID)
	convertedPath := audioPath + ".converted.wav"
	defer p.cleanup(taskLogger, audioPath, convertedPath)

	// Stage 1: file validation and preparation.
	p.advance(taskLogger, taskID, "file_preparation", 10, "Validating uploaded audio file", nil)
	p.pause(ctx)

	size, details, serr := p.prepareFile(audioPath)
	if serr != nil {
		p.fail(taskLogger, taskID, serr, nil)
		return
	}
	p.advance(taskLogger, taskID, "file_preparation", 20, fmt.Sprintf("Audio file validated (%d bytes)", size), details)

	// Stage 2: audio conversion.
	p.advance(taskLogger, taskID, "audio_conversion", 30, "Converting audio to WAV format", nil)
	p.pause(ctx)

	if serr := p.convert(ctx, audioPath, convertedPath); serr != nil {
		p.fail(taskLogger, taskID, serr, nil)
		return
	}
	p.advance(taskLogger, taskID, "audio_conversion", 60, "Audio converted successfully", map[string]interface{}{
		"sample_rate": 16000,
		"channels":    1,
	})

	// Stage 3: model readiness gate.
	p.advance(taskLogger, taskID, "model_loading", 70, "Checking transcription model", nil)
	p.pause(ctx)

	if !p.transcriber.Ready() {
		p.fail(taskLogger, taskID, &stageError{kind: errKindModelUnavailable, message: "model not loaded"}, nil)
		return
	}
	p.advance(taskLogger, taskID, "model_loading", 80, "Transcription model ready", nil)

	// Stage 4: transcription.
	p.advance(taskLogger, taskID, "transcription", 85, "Starting speech-to-text transcription", nil)
	p.pause(ctx)

	transcript, serr := p.transcribe(ctx, convertedPath)
	if serr != nil {
		p.fail(taskLogger, taskID, serr, nil)
		return
	}
	p.advance(taskLogger, taskID, "transcription", 90, fmt.Sprintf("Transcription completed: %d characters", len(transcript)), nil)
	p.advance(taskLogger, taskID, "transcription", 95, "Transcript preview: "+preview(transcript), nil)

	// Stage 5: entity extraction.
	p.advance(taskLogger, taskID, "ner_processing", 96, "Extracting medical entities", nil)
	p.pause(ctx)

	entities, err := p.extractor.Extract(transcript)
	if err != nil {
		// The transcript is discarded, but its size is recorded so operators
		// can tell a late failure from an early one.
		p.fail(taskLogger, taskID,
			&stageError{kind: errKindExtraction, message: "Entity extraction failed: " + err.Error()},
			map[string]interface{}{"transcript_chars": len(transcript)})
		return
	}
	p.advance(taskLogger, taskID, "ner_processing", 98, fmt.Sprintf("Found %d medical entities", ner.Count(entities)), nil)

	// Stage 6: final result synthesis.
	p.advance(taskLogger, taskID, "final_processing", 99, "Generating final results", nil)
	p.pause(ctx)

	result := &models.TranscriptionResult{
		Transcript: transcript,
		Diagnosis:  advisoryDiagnosis,
		Treatment:  advisoryTreatment,
		Entities:   entities,
	}
	if err := p.registry.SetResult(taskID, result); err != nil {
		taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to store task result")
		return
	}
	p.advance(taskLogger, taskID, store.StageCompleted, 100, "Processing completed successfully", nil)
}

// prepareFile verifies the upload exists and is non-empty, and sniffs its
// MIME type for the stage record details.
func (p *Pipeline) prepareFile(audioPath string) (int64, map[string]interface{}, *stageError) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return 0, nil, &stageError{kind: errKindValidation, message: "Audio file not found"}
	}
	if info.Size() == 0 {
		return 0, nil, &stageError{kind: errKindValidation, message: "Audio file is empty"}
	}

	details := map[string]interface{}{"file_size": info.Size()}
	if mtype, err := mimetype.DetectFile(audioPath); err == nil {
		details["mime_type"] = mtype.String()
	}
	return info.Size(), details, nil
}

// convert normalizes the upload to mono 16kHz 16-bit PCM.
func (p *Pipeline) convert(ctx context.Context, source, dest string) *stageError {
	if err := p.decoder.Decode(ctx, source, dest); err != nil {
		return &stageError{kind: errKindDecode, message: "Audio conversion failed: " + err.Error()}
	}
	return nil
}

// transcribe runs speech-to-text on the converted audio. A blank transcript
// is a failure: there was nothing to transcribe.
func (p *Pipeline) transcribe(ctx context.Context, convertedPath string) (string, *stageError) {
	transcript, err := p.transcriber.Transcribe(ctx, convertedPath)
	if err != nil {
		return "", &stageError{kind: errKindTranscription, message: "Transcription failed: " + err.Error()}
	}
	if isBlank(transcript) {
		return "", &stageError{kind: errKindTranscription, message: "Transcription failed - no speech detected"}
	}
	return transcript, nil
}

// advance appends a stage record and pushes it to any subscriber.
func (p *Pipeline) advance(taskLogger *logger.Logger, taskID, stage string, progress int, message string, details map[string]interface{}) {
	now := time.Now()
	if err := p.registry.AppendStage(taskID, stage, progress, message, details); err != nil {
		taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to record stage " + stage)
		return
	}
	taskLogger.WithPayload(map[string]interface{}{"stage": stage, "progress": progress}).Info(message)

	if p.notifier != nil {
		p.notifier.Notify(ProgressUpdate{
			TaskID:    taskID,
			Stage:     stage,
			Progress:  progress,
			Message:   message,
			Timestamp: now,
		})
	}
}

// fail writes the terminal error record. Progress resets to 0 on the error
// transition.
func (p *Pipeline) fail(taskLogger *logger.Logger, taskID string, serr *stageError, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["error_kind"] = string(serr.kind)

	taskLogger.WithError(models.ErrorInfo{Message: serr.message, Type: string(serr.kind)}).Error("Pipeline failed")
	if err := p.registry.AppendStage(taskID, store.StageError, 0, serr.message, details); err != nil {
		taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to record pipeline error")
		return
	}
	if p.notifier != nil {
		p.notifier.Notify(ProgressUpdate{
			TaskID:    taskID,
			Stage:     store.StageError,
			Progress:  0,
			Message:   serr.message,
			Timestamp: time.Now(),
		})
	}
}

// cleanup removes the upload and its converted copy on every exit path.
func (p *Pipeline) cleanup(taskLogger *logger.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to remove temporary file " + path)
		}
	}
}

// pause waits for the configured inter-stage delay or context cancellation.
func (p *Pipeline) pause(ctx context.Context) {
	if p.stageDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.stageDelay):
	}
}

// preview shortens a transcript for progress messages.
func preview(transcript string) string {
	const max = 100
	if len(transcript) <= max {
		return transcript
	}
	return transcript[:max] + "..."
}

// isBlank reports whether the transcript contains no speech content.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
