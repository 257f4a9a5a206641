package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// WebSocketChecker probes a node's websocket endpoint
type WebSocketChecker interface {
	URL(host string, secure bool) string
	IsAvailable(ctx context.Context, url string) bool
}

// APIMonitor refreshes the REST gateway status of the stalest nodes
type APIMonitor struct {
	nodes     repositories.NodeRepository
	crawler   *Crawler
	updater   *RegistryUpdater
	ws        WebSocketChecker
	batchSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

// NewAPIMonitor creates an API monitor that visits batchSize nodes per run
func NewAPIMonitor(
	nodes repositories.NodeRepository,
	crawler *Crawler,
	updater *RegistryUpdater,
	ws WebSocketChecker,
	batchSize int,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *APIMonitor {
	return &APIMonitor{
		nodes:     nodes,
		crawler:   crawler,
		updater:   updater,
		ws:        ws,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Refresh probes the API of the stalest nodes
func (m *APIMonitor) Refresh(ctx context.Context) error {
	start := time.Now()

	stale, err := m.nodes.FindStale(ctx, models.AspectAPI, m.batchSize)
	if err != nil {
		return fmt.Errorf("failed to select stale nodes: %w", err)
	}

	errs := RunLanes(ctx, stale, m.crawler.Concurrency(), func(ctx context.Context, node *models.Node) error {
		status := m.Probe(ctx, node)
		return m.updater.UpdateAPI(ctx, node.Identity(), status)
	})
	for _, err := range errs {
		m.logger.WithError(err).Error("Failed to write API status")
	}

	available := true
	if count, err := m.nodes.Count(ctx, models.NodeFilter{APIAvailable: &available}); err == nil {
		m.metrics.UpdateActiveNodesCount(string(models.AspectAPI), count)
	}
	m.metrics.RecordCrawl(string(models.AspectAPI), len(stale), time.Since(start))
	m.logger.WithFields(logrus.Fields{
		"nodes":    len(stale),
		"failed":   len(errs),
		"duration": time.Since(start).String(),
	}).Info("API refresh completed")

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d API writes failed", len(errs), len(stale))
	}
	return nil
}

// Probe checks the REST gateway and websocket of a node. Unreachable parts
// are reported as unavailable rather than as errors.
func (m *APIMonitor) Probe(ctx context.Context, node *models.Node) models.APIStatus {
	host := node.Host
	resolver := m.crawler.resolver
	rest := resolver.Rest()
	https := resolver.HTTPSEnabled(ctx, host)

	now := m.now()
	status := models.APIStatus{
		IsHTTPSEnabled:  https,
		LastStatusCheck: &now,
	}

	if accounts, ok := resolver.UnlockedAccounts(ctx, host, m.crawler.port(models.NodePeerFromNode(node))); ok {
		status.Harvesters = len(accounts)
	}

	status.WebSocket = m.probeWebSocket(ctx, host, https)

	if _, err := rest.GetNetworkProperties(ctx, host, https); err == nil {
		status.IsAvailable = true
		status.RestGatewayURL = rest.BaseURL(host, https)
	} else {
		m.logger.WithError(err).WithField("host", host).Debug("REST gateway unavailable")
	}

	if count, err := rest.GetTxSearchCountPerPage(ctx, host, https); err == nil {
		status.TxSearchCountPerPage = count
	}

	return status
}

// probeWebSocket prefers wss when the node serves HTTPS and falls back to ws
func (m *APIMonitor) probeWebSocket(ctx context.Context, host string, https bool) models.WebSocketStatus {
	if https {
		url := m.ws.URL(host, true)
		if m.ws.IsAvailable(ctx, url) {
			return models.WebSocketStatus{IsAvailable: true, WSS: true, URL: url}
		}
	}

	url := m.ws.URL(host, false)
	return models.WebSocketStatus{
		IsAvailable: m.ws.IsAvailable(ctx, url),
		URL:         url,
	}
}
