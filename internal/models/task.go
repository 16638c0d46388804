package models

import "time"

// TaskStatus is the lifecycle state of a transcription task.
type TaskStatus string

const (
	// TaskStatusPending means the task is registered but no pipeline stage has
	// run yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing means the pipeline is advancing through its stages.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted means the pipeline finished and a result is attached.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusError means the pipeline failed; the last stage record carries
	// the reason.
	TaskStatusError TaskStatus = "error"
)

// StageRecord is one entry in a task's progress history. Records are
// append-only; the full history stays queryable after completion.
type StageRecord struct {
	Stage     string                 `json:"stage"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Task is the full state of one transcription job.
type Task struct {
	ID              string               `json:"task_id"`
	Status          TaskStatus           `json:"status"`
	Stages          []StageRecord        `json:"stages"`
	CurrentStage    string               `json:"current_stage"`
	OverallProgress int                  `json:"overall_progress"`
	StartTime       time.Time            `json:"start_time"`
	LastUpdate      time.Time            `json:"last_update"`
	Result          *TranscriptionResult `json:"result,omitempty"`
}

// Terminal reports whether the task has finished, successfully or not.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}

// TranscriptionResult is the final output of a completed task.
type TranscriptionResult struct {
	Transcript string            `json:"transcript"`
	Diagnosis  string            `json:"diagnosis"`
	Treatment  string            `json:"treatment"`
	Entities   map[string]string `json:"entities"`
}

// TaskSummary is the condensed view returned by the task listing.
type TaskSummary struct {
	TaskID          string     `json:"task_id"`
	Status          TaskStatus `json:"status"`
	CurrentStage    string     `json:"current_stage"`
	OverallProgress int        `json:"progress"`
	StartTime       time.Time  `json:"start_time"`
	LastUpdate      time.Time  `json:"last_update"`
}

// TaskResponse acknowledges an accepted submission.
type TaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthStatus reports service and collaborator readiness.
type HealthStatus struct {
	Status           string    `json:"status"`
	TranscriberReady bool      `json:"transcriber_ready"`
	NERReady         bool      `json:"ner_ready"`
	Timestamp        time.Time `json:"timestamp"`
}
