package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// RateLimiter allows limit requests per client IP in each fixed window
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

type clientWindow struct {
	count int
	start time.Time
}

func NewRateLimiter(limit int, window time.Duration, m *metrics.Metrics, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := rl.allow(c.ClientIP())
		rl.metrics.RecordRateLimit(allowed)

		if !allowed {
			rl.logger.WithFields(logrus.Fields{
				"client_ip":  c.ClientIP(),
				"request_id": GetRequestID(c),
				"path":       c.Request.URL.Path,
			}).Warn("Rate limit exceeded")

			appErr := models.NewRateLimitError("Too many requests, please try again later").
				WithMetadata("retry_after", rl.window.Seconds())
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.Response())
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allow(clientIP string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[clientIP]
	if !ok || now.Sub(client.start) > rl.window {
		client = &clientWindow{start: now}
		rl.clients[clientIP] = client
	}

	if client.count >= rl.limit {
		return false
	}
	client.count++
	return true
}

// Cleanup drops idle clients every two windows until ctx is done
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for ip, client := range rl.clients {
				if now.Sub(client.start) > rl.window*2 {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}
