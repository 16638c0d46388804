package store

import (
	"errors"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown to the registry.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskTerminal is returned when a mutation targets a task that has
	// already completed or errored.
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

// TaskRegistry is the single source of truth for task progress and results.
type TaskRegistry interface {
	// CreateIfAbsent registers a new task with an initial stage record. If the
	// id is already known, it behaves as AppendStage.
	CreateIfAbsent(id, stage string, progress int, message string, details map[string]interface{}) error
	// AppendStage appends a stage record and advances the task's status.
	AppendStage(id, stage string, progress int, message string, details map[string]interface{}) error
	// SetResult attaches the final result to a task.
	SetResult(id string, result *models.TranscriptionResult) error
	// Get returns a snapshot of the task.
	Get(id string) (*models.Task, error)
	// List returns condensed summaries for all known tasks in insertion order.
	List() []models.TaskSummary
}

// Stage names with special meaning for status transitions.
const (
	StageStarted   = "started"
	StageCompleted = "completed"
	StageError     = "error"
)
