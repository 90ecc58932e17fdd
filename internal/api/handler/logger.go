package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/logger"
)

// logFrom returns the request-scoped logger set by the logger middleware.
func logFrom(c *gin.Context) *logger.Logger {
	if l, exists := c.Get("logger"); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
