package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
)

// Recovery turns a handler panic into a 500 response
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"request_id": GetRequestID(c),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"client_ip":  c.ClientIP(),
					"panic":      r,
					"stack":      string(debug.Stack()),
				}).Error("Panic recovered")

				appErr := models.NewInternalError("An unexpected error occurred", nil).
					WithMetadata("request_id", GetRequestID(c))
				c.AbortWithStatusJSON(appErr.StatusCode, appErr.Response())
			}
		}()

		c.Next()
	}
}
