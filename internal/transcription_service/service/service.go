package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/ner"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcriber"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/store"
	"github.com/jaiswal-naman/vet-scribe-ai/pkg/logger"
)

var (
	// ErrUnsupportedFormat is returned synchronously when the uploaded
	// filename's extension is not an accepted audio format.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrResultNotReady is returned when a result is requested before the
	// task has completed.
	ErrResultNotReady = errors.New("task not completed yet")
)

// DefaultExtensions are the upload extensions accepted when none are
// configured.
var DefaultExtensions = []string{"wav", "mp3", "m4a", "ogg", "webm"}

// TranscriptionService provides the core business logic: accepting uploads,
// scheduling pipeline runs, and answering progress and result queries.
type TranscriptionService struct {
	registry    store.TaskRegistry
	pipeline    *Pipeline
	connManager *ConnectionManager
	transcriber transcriber.Transcriber
	extractor   ner.Extractor
	logger      *logger.Logger

	uploadDir string
	allowed   map[string]struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewTranscriptionService creates the service. uploadDir empty means the
// system temp directory; extensions empty means DefaultExtensions.
func NewTranscriptionService(registry store.TaskRegistry, pipeline *Pipeline, connManager *ConnectionManager, t transcriber.Transcriber, extractor ner.Extractor, log *logger.Logger, uploadDir string, extensions []string) *TranscriptionService {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &TranscriptionService{
		registry:    registry,
		pipeline:    pipeline,
		connManager: connManager,
		transcriber: t,
		extractor:   extractor,
		logger:      log,
		uploadDir:   uploadDir,
		allowed:     allowed,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Submit validates and stages the upload, registers a new task, and schedules
// one pipeline run for it. It returns as soon as the task is registered; the
// caller never waits for processing.
func (s *TranscriptionService) Submit(ctx context.Context, filename string, file io.Reader) (*models.TaskResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.allowed[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	audioPath, err := s.saveUpload(file, ext)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to stage uploaded file")
		return nil, err
	}

	taskID := uuid.New().String()
	if err := s.registry.CreateIfAbsent(taskID, store.StageStarted, 0, "Task started for file: "+filename, nil); err != nil {
		os.Remove(audioPath)
		return nil, err
	}

	// One pipeline run per submission, each with its own context so runs are
	// cancellable in principle even though cancellation is not exposed.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(taskID)
		s.pipeline.Run(runCtx, taskID, audioPath)
	}()

	s.logger.WithPayload(map[string]interface{}{"task_id": taskID, "filename": filename}).Info("Transcription task started")
	return &models.TaskResponse{
		TaskID:  taskID,
		Status:  "started",
		Message: "Transcription task started",
	}, nil
}

// saveUpload copies the upload to a uniquely named temp file preserving the
// original extension, so the decoder can detect the container format.
func (s *TranscriptionService) saveUpload(file io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(s.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return tmp.Name(), nil
}

func (s *TranscriptionService) forget(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[taskID]; ok {
		cancel()
		delete(s.cancels, taskID)
	}
}

// GetProgress returns the full task snapshot.
func (s *TranscriptionService) GetProgress(taskID string) (*models.Task, error) {
	return s.registry.Get(taskID)
}

// GetResult returns the final result of a completed task. It fails with
// store.ErrTaskNotFound for unknown ids and ErrResultNotReady while the task
// is still pending, processing or errored.
func (s *TranscriptionService) GetResult(taskID string) (*models.TranscriptionResult, error) {
	task, err := s.registry.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusCompleted || task.Result == nil {
		return nil, ErrResultNotReady
	}
	return task.Result, nil
}

// ListTasks returns condensed summaries for all known tasks.
func (s *TranscriptionService) ListTasks() []models.TaskSummary {
	return s.registry.List()
}

// Health reports collaborator readiness.
func (s *TranscriptionService) Health() models.HealthStatus {
	return models.HealthStatus{
		Status:           "healthy",
		TranscriberReady: s.transcriber.Ready(),
		NERReady:         s.extractor.Ready(),
		Timestamp:        time.Now(),
	}
}

// Subscribe registers a WebSocket connection for a task's progress updates.
// It fails with store.ErrTaskNotFound when the task is unknown.
func (s *TranscriptionService) Subscribe(taskID string, conn *websocket.Conn) error {
	if _, err := s.registry.Get(taskID); err != nil {
		return err
	}
	s.connManager.Add(taskID, conn)
	return nil
}

// Unsubscribe removes conn as the task's WebSocket subscriber. A connection
// that has already been replaced is left alone.
func (s *TranscriptionService) Unsubscribe(taskID string, conn *websocket.Conn) {
	s.connManager.Remove(taskID, conn)
}

// Close cancels in-flight pipeline runs and waits for them to finish or for
// the context to expire.
func (s *TranscriptionService) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
