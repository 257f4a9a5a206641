package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// BootstrapService seeds the network settings and the node registry from the
// configured init hosts
type BootstrapService struct {
	nodes     repositories.NodeRepository
	settings  repositories.SettingsRepository
	crawler   *Crawler
	updater   *RegistryUpdater
	peers     *PeerMonitor
	initHosts []string
	logger    *logrus.Logger
}

// NewBootstrapService creates a bootstrap service for initHosts
func NewBootstrapService(
	nodes repositories.NodeRepository,
	settings repositories.SettingsRepository,
	crawler *Crawler,
	updater *RegistryUpdater,
	peers *PeerMonitor,
	initHosts []string,
	logger *logrus.Logger,
) *BootstrapService {
	return &BootstrapService{
		nodes:     nodes,
		settings:  settings,
		crawler:   crawler,
		updater:   updater,
		peers:     peers,
		initHosts: initHosts,
		logger:    logger,
	}
}

// Run loads the network settings when missing and seeds an empty registry.
// It fails only when no init host could be used.
func (bs *BootstrapService) Run(ctx context.Context) error {
	settings, err := bs.ensureSettings(ctx)
	if err != nil {
		return err
	}

	count, err := bs.nodes.Count(ctx, models.NodeFilter{})
	if err != nil {
		return fmt.Errorf("failed to count nodes: %w", err)
	}
	if count > 0 {
		bs.logger.WithField("nodes", count).Debug("Registry already seeded")
		return nil
	}

	return bs.seedRegistry(ctx, settings.NetworkGenerationHashSeed)
}

func (bs *BootstrapService) ensureSettings(ctx context.Context) (*models.NetworkSettings, error) {
	settings, err := bs.settings.GetNetworkSettings(ctx)
	if err == nil {
		return settings, nil
	}
	if !apperrors.IsConfiguration(err) {
		return nil, fmt.Errorf("failed to load network settings: %w", err)
	}

	var result *multierror.Error
	rest := bs.crawler.resolver.Rest()
	for _, host := range bs.initHosts {
		props, err := rest.TryHTTPSNetworkProperties(ctx, host)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", host, err))
			continue
		}

		settings, err := models.NetworkSettingsFromProperties(props)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", host, err))
			continue
		}

		if err := bs.settings.SaveNetworkSettings(ctx, settings); err != nil {
			return nil, fmt.Errorf("failed to save network settings: %w", err)
		}

		bs.logger.WithFields(logrus.Fields{
			"host":            host,
			"generationHash":  settings.NetworkGenerationHashSeed,
			"currencyMosaic":  settings.CurrencyMosaicID,
			"minVoterBalance": settings.MinVoterBalance,
		}).Info("Network settings loaded")
		return settings, nil
	}

	return nil, fmt.Errorf("no init host returned network properties: %w", result.ErrorOrNil())
}

func (bs *BootstrapService) seedRegistry(ctx context.Context, seed string) error {
	var (
		mu      sync.Mutex
		sources []models.NodePeer
	)

	errs := RunLanes(ctx, bs.initHosts, bs.crawler.Concurrency(), func(ctx context.Context, host string) error {
		info, err := bs.probeInitHost(ctx, host)
		if err != nil {
			return fmt.Errorf("%s: %w", host, err)
		}
		if info.NetworkGenerationHashSeed != seed {
			return fmt.Errorf("%s: announces generation hash seed %s", host, info.NetworkGenerationHashSeed)
		}

		peer := info.NodePeer
		chain := bs.crawler.resolver.ChainInfo(ctx, host, bs.crawler.port(peer))
		if err := bs.updater.UpsertPeer(ctx, peer, info, chain); err != nil {
			return fmt.Errorf("%s: %w", host, err)
		}

		mu.Lock()
		sources = append(sources, peer)
		mu.Unlock()
		return nil
	})

	var result *multierror.Error
	result = multierror.Append(result, errs...)
	if len(sources) == 0 {
		return fmt.Errorf("no init host could be registered: %w", result.ErrorOrNil())
	}
	if result.ErrorOrNil() != nil {
		bs.logger.WithError(result).Warn("Some init hosts could not be registered")
	}

	bs.logger.WithField("nodes", len(sources)).Info("Registry seeded from init hosts")
	return bs.peers.Discover(ctx, sources, seed)
}

// probeInitHost asks the REST gateway first since the peer port is not known
// yet, then completes the certificate fields over the socket
func (bs *BootstrapService) probeInitHost(ctx context.Context, host string) (*models.NodeInfo, error) {
	rest, err := bs.crawler.resolver.Rest().TryHTTPSNodeInfo(ctx, host)
	if err != nil {
		return nil, err
	}
	rest.Host = host

	port := bs.crawler.port(rest.NodePeer)
	socket, err := bs.crawler.resolver.socket.GetNodeInfo(ctx, host, port)
	if err != nil {
		bs.logger.WithError(err).WithField("host", host).Warn("Socket node info unavailable for init host")
	}

	merged := MergeNodeInfo(rest, socket)
	merged.Host = host
	return merged, nil
}
