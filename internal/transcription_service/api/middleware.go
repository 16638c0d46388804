package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/pkg/logger"
)

// RequestLogger creates a gin middleware that logs every request with its
// method, path, caller and outcome.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		requestLog := log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		if c.Writer.Status() >= 500 {
			requestLog.Error("Request failed")
			return
		}
		requestLog.Info("Request handled")
	}
}
