package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// PeerProbe is the result of probing one announced peer. NodeInfo and
// ChainInfo are nil when the node did not answer.
type PeerProbe struct {
	Peer      models.NodePeer
	NodeInfo  *models.NodeInfo
	ChainInfo *models.ChainInfo
}

// Crawler fans node requests out over a fixed number of lanes
type Crawler struct {
	resolver    *TransportResolver
	concurrency int
	defaultPort int
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// NewCrawler creates a crawler. defaultPort is used for peers announced
// without a port.
func NewCrawler(resolver *TransportResolver, concurrency, defaultPort int, m *metrics.Metrics, logger *logrus.Logger) *Crawler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Crawler{
		resolver:    resolver,
		concurrency: concurrency,
		defaultPort: defaultPort,
		metrics:     m,
		logger:      logger,
	}
}

// Concurrency returns the number of lanes used per crawl phase
func (c *Crawler) Concurrency() int {
	return c.concurrency
}

// Partition deals tasks round-robin into min(c, len(tasks)) buckets
func Partition[T any](tasks []T, c int) [][]T {
	if len(tasks) == 0 || c <= 0 {
		return nil
	}
	if c > len(tasks) {
		c = len(tasks)
	}

	buckets := make([][]T, c)
	for i, task := range tasks {
		buckets[i%c] = append(buckets[i%c], task)
	}
	return buckets
}

// RunLanes runs fn over tasks with one goroutine per bucket. Tasks inside a
// bucket run in order. A failing or panicking task does not stop its lane;
// a cancelled context does. The returned errors are in no particular order.
func RunLanes[T any](ctx context.Context, tasks []T, c int, fn func(context.Context, T) error) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, bucket := range Partition(tasks, c) {
		wg.Add(1)
		go func(bucket []T) {
			defer wg.Done()
			for _, task := range bucket {
				if err := ctx.Err(); err != nil {
					collect(err)
					return
				}
				if err := runTask(ctx, task, fn); err != nil {
					collect(err)
				}
			}
		}(bucket)
	}

	wg.Wait()
	return errs
}

func runTask[T any](ctx context.Context, task T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, task)
}

// FilterByGenerationHashSeed keeps the peers announcing seed, in order
func FilterByGenerationHashSeed(peers []models.NodePeer, seed string) []models.NodePeer {
	filtered := make([]models.NodePeer, 0, len(peers))
	for _, peer := range peers {
		if peer.NetworkGenerationHashSeed == seed {
			filtered = append(filtered, peer)
		}
	}
	return filtered
}

// CollectPeers asks every source for its peer list and returns the union of
// the announcements on the tracked network, keyed by identity
func (c *Crawler) CollectPeers(ctx context.Context, sources []models.NodePeer, seed string) map[string]models.NodePeer {
	start := time.Now()

	var mu sync.Mutex
	collected := make(map[string]models.NodePeer)

	errs := RunLanes(ctx, sources, c.concurrency, func(ctx context.Context, source models.NodePeer) error {
		peers := c.resolver.NodePeers(ctx, source.Host, c.port(source))
		if len(peers) == 0 {
			return nil
		}

		matching := FilterByGenerationHashSeed(peers, seed)
		if dropped := len(peers) - len(matching); dropped > 0 {
			c.logger.WithFields(logrus.Fields{
				"source":  source.Host,
				"dropped": dropped,
			}).Debug("Dropped peers of another network")
		}

		mu.Lock()
		defer mu.Unlock()
		for _, peer := range matching {
			if peer.Host == "" {
				continue
			}
			collected[peer.Identity().Key()] = peer
		}
		return nil
	})
	c.reportFailures("collect", errs)

	c.metrics.RecordCrawl("collect", len(collected), time.Since(start))
	c.logger.WithFields(logrus.Fields{
		"sources":  len(sources),
		"peers":    len(collected),
		"duration": time.Since(start).String(),
	}).Info("Collected peer announcements")

	return collected
}

// ProbePeers fetches NodeInfo and ChainInfo for every peer. A node whose
// NodeInfo announces another network gets neither.
func (c *Crawler) ProbePeers(ctx context.Context, peers map[string]models.NodePeer, seed string) map[string]PeerProbe {
	start := time.Now()

	keys := make([]string, 0, len(peers))
	for key := range peers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var mu sync.Mutex
	probes := make(map[string]PeerProbe, len(peers))

	errs := RunLanes(ctx, keys, c.concurrency, func(ctx context.Context, key string) error {
		peer := peers[key]
		port := c.port(peer)

		info := c.resolver.NodeInfo(ctx, peer.Host, port)
		var chain *models.ChainInfo
		if info != nil && info.NetworkGenerationHashSeed != seed {
			// The chain it reports belongs to the other network too
			c.logger.WithFields(logrus.Fields{
				"host": peer.Host,
				"seed": info.NetworkGenerationHashSeed,
			}).Debug("Discarded node info of another network")
			info = nil
		} else {
			chain = c.resolver.ChainInfo(ctx, peer.Host, port)
		}

		mu.Lock()
		probes[key] = PeerProbe{Peer: peer, NodeInfo: info, ChainInfo: chain}
		mu.Unlock()
		return nil
	})
	c.reportFailures("probe", errs)

	c.metrics.RecordCrawl("probe", len(probes), time.Since(start))
	return probes
}

func (c *Crawler) port(peer models.NodePeer) int {
	if peer.Port == 0 {
		return c.defaultPort
	}
	return int(peer.Port)
}

func (c *Crawler) reportFailures(phase string, errs []error) {
	for _, err := range errs {
		c.metrics.RecordCrawlTaskFailure(phase)
		c.logger.WithError(err).WithField("phase", phase).Error("Crawl task failed")
	}
}
