package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/service"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/store"
	"github.com/jaiswal-naman/vet-scribe-ai/pkg/logger"
)

// API provides handlers for the transcription service.
type API struct {
	service  *service.TranscriptionService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.TranscriptionService, log *logger.Logger) *API {
	return &API{
		service: svc,
		logger:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// RootHandler reports that the API is up.
func (a *API) RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Vet Voice Transcription API is running"})
}

// TranscribeHandler accepts an audio upload and starts a transcription task.
func (a *API) TranscribeHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid upload request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer file.Close()

	resp, err := a.service.Submit(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported audio format"})
			return
		}
		// The service layer already logged the detailed error.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transcription"})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// ProgressHandler returns the full progress snapshot for a task.
func (a *API) ProgressHandler(c *gin.Context) {
	taskID := c.Param("id")

	task, err := a.service.GetProgress(taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// ResultsHandler returns the final result for a completed task.
func (a *API) ResultsHandler(c *gin.Context) {
	taskID := c.Param("id")

	result, err := a.service.GetResult(taskID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		case errors.Is(err, service.ErrResultNotReady):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Task not completed yet"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve result"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// TasksHandler lists condensed summaries for all tasks.
func (a *API) TasksHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": a.service.ListTasks()})
}

// HealthHandler reports collaborator readiness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.Health())
}

// WebSocketHandler upgrades the connection and streams progress updates for a
// task until the client disconnects.
func (a *API) WebSocketHandler(c *gin.Context) {
	taskID := c.Param("id")

	if _, err := a.service.GetProgress(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	if err := a.service.Subscribe(taskID, conn); err != nil {
		conn.Close()
		return
	}

	go func() {
		defer a.service.Unsubscribe(taskID, conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				break
			}
		}
	}()
}
