package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the transcription service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/", api.RootHandler)
	router.GET("/health", api.HealthHandler)

	router.POST("/transcribe", api.TranscribeHandler)
	router.GET("/progress/:id", api.ProgressHandler)
	router.GET("/results/:id", api.ResultsHandler)
	router.GET("/tasks", api.TasksHandler)

	// Live progress push; polling the progress endpoint remains authoritative.
	router.GET("/ws/progress/:id", api.WebSocketHandler)
}
