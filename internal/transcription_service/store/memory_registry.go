package store

import (
	"sync"
	"time"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
)

// MemoryTaskRegistry is an in-memory implementation of TaskRegistry. A single
// RWMutex guards the task map; each task is mutated by exactly one pipeline
// goroutine while any number of query readers take snapshots.
type MemoryTaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	order []string
}

// NewMemoryTaskRegistry creates an empty registry.
func NewMemoryTaskRegistry() *MemoryTaskRegistry {
	return &MemoryTaskRegistry{
		tasks: make(map[string]*models.Task),
	}
}

// CreateIfAbsent registers a new task in pending state with its initial stage
// record. Calling it for a known id appends a stage instead.
func (r *MemoryTaskRegistry) CreateIfAbsent(id, stage string, progress int, message string, details map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return r.appendLocked(id, stage, progress, message, details)
	}

	now := time.Now()
	task := &models.Task{
		ID:              id,
		Status:          models.TaskStatusPending,
		CurrentStage:    stage,
		OverallProgress: progress,
		StartTime:       now,
		LastUpdate:      now,
	}
	task.Stages = append(task.Stages, newStageRecord(stage, progress, message, details, now))
	r.tasks[id] = task
	r.order = append(r.order, id)
	return nil
}

// AppendStage appends a stage record and updates current stage, overall
// progress and status. The "error" and "completed" stages move the task into
// its terminal state; any other stage marks it processing.
func (r *MemoryTaskRegistry) AppendStage(id, stage string, progress int, message string, details map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(id, stage, progress, message, details)
}

func (r *MemoryTaskRegistry) appendLocked(id, stage string, progress int, message string, details map[string]interface{}) error {
	task, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Terminal() {
		return ErrTaskTerminal
	}

	now := time.Now()
	task.Stages = append(task.Stages, newStageRecord(stage, progress, message, details, now))
	task.CurrentStage = stage
	task.OverallProgress = progress
	task.LastUpdate = now

	switch stage {
	case StageError:
		task.Status = models.TaskStatusError
	case StageCompleted:
		task.Status = models.TaskStatusCompleted
	default:
		task.Status = models.TaskStatusProcessing
	}
	return nil
}

// SetResult attaches the final result. The caller is expected to append the
// "completed" stage afterwards; the result itself is written once and never
// cleared.
func (r *MemoryTaskRegistry) SetResult(id string, result *models.TranscriptionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.Result = result
	return nil
}

// Get returns a snapshot of the task. The stages slice is copied so readers
// never observe a partially appended record; stage details are immutable by
// contract and shared.
func (r *MemoryTaskRegistry) Get(id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return snapshot(task), nil
}

// List returns summaries for all known tasks in insertion order.
func (r *MemoryTaskRegistry) List() []models.TaskSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]models.TaskSummary, 0, len(r.order))
	for _, id := range r.order {
		task := r.tasks[id]
		summaries = append(summaries, models.TaskSummary{
			TaskID:          task.ID,
			Status:          task.Status,
			CurrentStage:    task.CurrentStage,
			OverallProgress: task.OverallProgress,
			StartTime:       task.StartTime,
			LastUpdate:      task.LastUpdate,
		})
	}
	return summaries
}

func newStageRecord(stage string, progress int, message string, details map[string]interface{}, ts time.Time) models.StageRecord {
	if details == nil {
		details = map[string]interface{}{}
	}
	return models.StageRecord{
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: ts,
		Details:   details,
	}
}

func snapshot(task *models.Task) *models.Task {
	copied := *task
	copied.Stages = make([]models.StageRecord, len(task.Stages))
	copy(copied.Stages, task.Stages)
	return &copied
}
