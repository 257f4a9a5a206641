package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

const httpsCacheKeyPrefix = "symbol-tracker:https:"

// HTTPSProber checks whether a host serves its REST gateway over HTTPS
type HTTPSProber interface {
	IsHTTPSEnabled(ctx context.Context, host string) bool
}

type httpsEntry struct {
	enabled   bool
	expiresAt time.Time
}

// HTTPSCapabilityCache remembers the per-host HTTPS flag so the REST fallback
// does not re-probe every host on every round. Redis is used when configured;
// otherwise, and whenever Redis errors, entries live in process memory.
type HTTPSCapabilityCache struct {
	prober  HTTPSProber
	redis   *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger

	mu      sync.RWMutex
	entries map[string]httpsEntry
}

// NewHTTPSCapabilityCache creates the cache. client may be nil.
func NewHTTPSCapabilityCache(prober HTTPSProber, client *redis.Client, ttl time.Duration, m *metrics.Metrics, logger *logrus.Logger) *HTTPSCapabilityCache {
	return &HTTPSCapabilityCache{
		prober:  prober,
		redis:   client,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
		entries: make(map[string]httpsEntry),
	}
}

// IsHTTPSEnabled returns the cached flag for host, probing on a miss
func (c *HTTPSCapabilityCache) IsHTTPSEnabled(ctx context.Context, host string) bool {
	if enabled, ok := c.get(ctx, host); ok {
		return enabled
	}

	enabled := c.prober.IsHTTPSEnabled(ctx, host)
	c.set(ctx, host, enabled)
	return enabled
}

func (c *HTTPSCapabilityCache) get(ctx context.Context, host string) (bool, bool) {
	if c.redis != nil {
		value, err := c.redis.Get(ctx, httpsCacheKeyPrefix+host).Result()
		switch {
		case err == nil:
			c.metrics.RecordHTTPSCacheLookup("redis", true)
			return value == "1", true
		case errors.Is(err, redis.Nil):
			c.metrics.RecordHTTPSCacheLookup("redis", false)
			return false, false
		default:
			c.logger.WithError(err).WithField("host", host).Debug("Redis lookup failed, using memory cache")
		}
	}

	c.mu.RLock()
	entry, ok := c.entries[host]
	c.mu.RUnlock()

	hit := ok && time.Now().Before(entry.expiresAt)
	c.metrics.RecordHTTPSCacheLookup("memory", hit)
	return entry.enabled, hit
}

func (c *HTTPSCapabilityCache) set(ctx context.Context, host string, enabled bool) {
	if c.redis != nil {
		value := "0"
		if enabled {
			value = "1"
		}
		err := c.redis.Set(ctx, httpsCacheKeyPrefix+host, value, c.ttl).Err()
		if err == nil {
			return
		}
		c.logger.WithError(err).WithField("host", host).Debug("Redis store failed, using memory cache")
	}

	c.mu.Lock()
	c.entries[host] = httpsEntry{enabled: enabled, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
