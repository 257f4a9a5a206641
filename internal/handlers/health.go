package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store   Pinger
	logger  *logrus.Logger
	version string
}

func NewHealthHandler(store Pinger, logger *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		logger:  logger,
		version: version,
	}
}

// Health performs a basic health check
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	// Check store connection
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Error("Store health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
			"version":   h.version,
			"error":     "store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
	})
}
