package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// PeerMonitor discovers nodes from the peer lists of the stalest registry
// entries and refreshes their peer status
type PeerMonitor struct {
	nodes     repositories.NodeRepository
	settings  repositories.SettingsRepository
	crawler   *Crawler
	updater   *RegistryUpdater
	batchSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewPeerMonitor creates a peer monitor that visits batchSize nodes per run
func NewPeerMonitor(
	nodes repositories.NodeRepository,
	settings repositories.SettingsRepository,
	crawler *Crawler,
	updater *RegistryUpdater,
	batchSize int,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *PeerMonitor {
	return &PeerMonitor{
		nodes:     nodes,
		settings:  settings,
		crawler:   crawler,
		updater:   updater,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// Refresh runs one discovery round starting from the stalest nodes
func (m *PeerMonitor) Refresh(ctx context.Context) error {
	settings, err := m.settings.GetNetworkSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load network settings: %w", err)
	}

	stale, err := m.nodes.FindStale(ctx, models.AspectPeer, m.batchSize)
	if err != nil {
		return fmt.Errorf("failed to select stale nodes: %w", err)
	}
	if len(stale) == 0 {
		m.logger.Info("No nodes registered yet, skipping peer refresh")
		return nil
	}

	sources := make([]models.NodePeer, 0, len(stale))
	for _, node := range stale {
		sources = append(sources, models.NodePeerFromNode(node))
	}
	return m.Discover(ctx, sources, settings.NetworkGenerationHashSeed)
}

// Discover collects the peers announced by sources, probes them and the
// sources themselves, and writes the results
func (m *PeerMonitor) Discover(ctx context.Context, sources []models.NodePeer, seed string) error {
	start := time.Now()

	peers := m.crawler.CollectPeers(ctx, sources, seed)
	// Sources are re-probed too so their staleness cursor advances even
	// when no other node announces them.
	for _, source := range sources {
		key := source.Identity().Key()
		if _, ok := peers[key]; !ok && source.Host != "" {
			peers[key] = source
		}
	}

	probes := m.crawler.ProbePeers(ctx, peers, seed)

	keys := make([]string, 0, len(probes))
	for key := range probes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	errs := RunLanes(ctx, keys, m.crawler.Concurrency(), func(ctx context.Context, key string) error {
		probe := probes[key]
		return m.updater.UpsertPeer(ctx, probe.Peer, probe.NodeInfo, probe.ChainInfo)
	})
	for _, err := range errs {
		m.logger.WithError(err).Error("Failed to write peer status")
	}

	m.refreshAvailableCount(ctx)
	m.logger.WithFields(logrus.Fields{
		"sources":  len(sources),
		"probed":   len(probes),
		"failed":   len(errs),
		"duration": time.Since(start).String(),
	}).Info("Peer refresh completed")

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d peer writes failed", len(errs), len(probes))
	}
	return nil
}

func (m *PeerMonitor) refreshAvailableCount(ctx context.Context) {
	available := true
	count, err := m.nodes.Count(ctx, models.NodeFilter{PeerAvailable: &available})
	if err != nil {
		m.logger.WithError(err).Warn("Failed to count available peers")
		return
	}
	m.metrics.UpdateActiveNodesCount(string(models.AspectPeer), count)
}
