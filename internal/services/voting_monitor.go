package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// VotingMonitor refreshes the finalization voting eligibility of the
// stalest nodes
type VotingMonitor struct {
	nodes     repositories.NodeRepository
	settings  repositories.SettingsRepository
	crawler   *Crawler
	updater   *RegistryUpdater
	batchSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

// NewVotingMonitor creates a voting monitor that visits batchSize nodes per run
func NewVotingMonitor(
	nodes repositories.NodeRepository,
	settings repositories.SettingsRepository,
	crawler *Crawler,
	updater *RegistryUpdater,
	batchSize int,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *VotingMonitor {
	return &VotingMonitor{
		nodes:     nodes,
		settings:  settings,
		crawler:   crawler,
		updater:   updater,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Refresh checks the voting status of the stalest nodes
func (m *VotingMonitor) Refresh(ctx context.Context) error {
	start := time.Now()

	settings, err := m.settings.GetNetworkSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load network settings: %w", err)
	}

	stale, err := m.nodes.FindStale(ctx, models.AspectVoting, m.batchSize)
	if err != nil {
		return fmt.Errorf("failed to select stale nodes: %w", err)
	}

	errs := RunLanes(ctx, stale, m.crawler.Concurrency(), func(ctx context.Context, node *models.Node) error {
		status, err := m.Probe(ctx, node, settings)
		if err != nil {
			return err
		}
		return m.updater.UpdateVoting(ctx, node.Identity(), status)
	})
	for _, err := range errs {
		m.logger.WithError(err).Error("Failed to refresh voting status")
	}

	enabled := true
	if count, err := m.nodes.Count(ctx, models.NodeFilter{VotingEnabled: &enabled}); err == nil {
		m.metrics.UpdateActiveNodesCount(string(models.AspectVoting), count)
	}
	m.metrics.RecordCrawl(string(models.AspectVoting), len(stale), time.Since(start))
	m.logger.WithFields(logrus.Fields{
		"nodes":    len(stale),
		"failed":   len(errs),
		"duration": time.Since(start).String(),
	}).Info("Voting refresh completed")

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d voting checks failed", len(errs), len(stale))
	}
	return nil
}

// Probe reads the node's account from its own gateway, or from a random
// available gateway when the node serves no API. An unreachable account
// yields a disabled status.
func (m *VotingMonitor) Probe(ctx context.Context, node *models.Node, settings *models.NetworkSettings) (models.VotingStatus, error) {
	if settings == nil {
		return models.VotingStatus{}, apperrors.Wrapf(apperrors.ErrConfiguration, "voting check of %s", node.Identity())
	}

	now := m.now()
	status := models.VotingStatus{LastStatusCheck: &now}

	gateway, err := m.gateway(ctx, node)
	if err != nil {
		return models.VotingStatus{}, err
	}
	if gateway == "" {
		m.logger.WithField("node", node.Identity().String()).Warn("No API node available for voting check")
		return status, nil
	}

	rest := m.crawler.resolver.Rest()
	https := m.crawler.resolver.HTTPSEnabled(ctx, gateway)
	account, err := rest.GetAccountInfo(ctx, gateway, https, node.PublicKey)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"node":    node.Identity().String(),
			"gateway": gateway,
		}).Debug("Account lookup failed")
		return status, nil
	}

	status.VotingKey = account.CurrentVotingKey()
	status.AccountBalance = account.Balance(settings.CurrencyMosaicID)

	var epoch uint32
	if node.Peer.Finalization != nil {
		epoch = node.Peer.Finalization.Epoch
	}
	status.IsVotingEnabled = node.Peer.Finalization != nil &&
		status.AccountBalance >= settings.MinVoterBalance &&
		status.VotingKey.CoversEpoch(epoch)

	return status, nil
}

// gateway returns "" when no node with an available API exists
func (m *VotingMonitor) gateway(ctx context.Context, node *models.Node) (string, error) {
	if node.API.IsAvailable {
		return node.Host, nil
	}

	random, err := m.nodes.FindRandomAPIAvailable(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to pick an API node: %w", err)
	}
	if random == nil {
		return "", nil
	}
	return random.Host, nil
}
