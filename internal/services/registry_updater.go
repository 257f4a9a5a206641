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

// HostLocator resolves a host to its network location
type HostLocator interface {
	Lookup(ctx context.Context, host string) (*models.HostDetail, error)
}

// RegistryUpdater writes probe results into the node registry. Every write
// touches a single aspect of the record.
type RegistryUpdater struct {
	nodes   repositories.NodeRepository
	geo     HostLocator
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewRegistryUpdater creates an updater. geo may be nil to skip host details.
func NewRegistryUpdater(nodes repositories.NodeRepository, geo HostLocator, m *metrics.Metrics, logger *logrus.Logger) *RegistryUpdater {
	return &RegistryUpdater{
		nodes:   nodes,
		geo:     geo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ApplyPeerProbe overlays a probe of an announced node onto its last known
// peer status. Node key, certificate and chain fields are replaced only by
// what this probe obtained. The node is available only when its NodeInfo
// came with a certificate expiry.
func ApplyPeerProbe(last models.PeerStatus, peer models.NodePeer, info *models.NodeInfo, chain *models.ChainInfo, now time.Time) models.PeerStatus {
	checked := now
	status := last
	status.Port = peer.Port
	status.FriendlyName = peer.FriendlyName
	status.Version = peer.Version
	status.NetworkGenerationHashSeed = peer.NetworkGenerationHashSeed
	status.Roles = peer.Roles
	status.NetworkIdentifier = peer.NetworkIdentifier
	status.IsAvailable = false
	status.LastStatusCheck = &checked

	if info != nil {
		if info.Port != 0 {
			status.Port = info.Port
		}
		status.FriendlyName = info.FriendlyName
		status.Version = info.Version
		status.NetworkGenerationHashSeed = info.NetworkGenerationHashSeed
		status.Roles = info.Roles
		status.NetworkIdentifier = info.NetworkIdentifier
		if info.NodePublicKey != "" {
			status.NodePublicKey = info.NodePublicKey
		}
		if info.CertificateExpirationDate != nil {
			expiry := *info.CertificateExpirationDate
			status.CertificateExpirationDate = &expiry
			status.IsAvailable = true
		}
	}

	if chain != nil {
		status.ChainHeight = chain.Height
		status.Finalization = &models.Finalization{
			Height: chain.LatestFinalizedBlock.Height,
			Epoch:  chain.LatestFinalizedBlock.FinalizationEpoch,
			Point:  chain.LatestFinalizedBlock.FinalizationPoint,
			Hash:   chain.LatestFinalizedBlock.Hash,
		}
	}

	return status
}

// UpsertPeer creates or refreshes the record of an announced node. Losing a
// create race to another writer is logged and ignored.
func (u *RegistryUpdater) UpsertPeer(ctx context.Context, peer models.NodePeer, info *models.NodeInfo, chain *models.ChainInfo) error {
	id := peer.Identity()
	now := u.now()

	existing, err := u.nodes.FindOne(ctx, id)
	if err != nil {
		u.metrics.RecordRegistryWrite(string(models.AspectPeer), "error")
		return fmt.Errorf("failed to find node %s: %w", id, err)
	}

	if existing == nil {
		status := ApplyPeerProbe(models.PeerStatus{}, peer, info, chain, now)
		node := &models.Node{
			Host:       id.Host,
			PublicKey:  id.PublicKey,
			Peer:       status,
			HostDetail: u.locate(ctx, id.Host),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := u.nodes.Create(ctx, node); err != nil {
			if apperrors.IsConflict(err) {
				u.metrics.RecordRegistryWrite(string(models.AspectPeer), "conflict")
				u.logger.WithField("node", id.String()).Warn("Node was created concurrently, dropping write")
				return nil
			}
			u.metrics.RecordRegistryWrite(string(models.AspectPeer), "error")
			return fmt.Errorf("failed to create node %s: %w", id, err)
		}
		u.metrics.RecordRegistryWrite(string(models.AspectPeer), "created")
		u.logger.WithFields(logrus.Fields{
			"node":      id.String(),
			"available": status.IsAvailable,
		}).Info("Registered new node")
		return nil
	}

	status := ApplyPeerProbe(existing.Peer, peer, info, chain, now)
	if err := u.nodes.UpdatePeer(ctx, id, status); err != nil {
		u.metrics.RecordRegistryWrite(string(models.AspectPeer), "error")
		return fmt.Errorf("failed to update peer status of %s: %w", id, err)
	}
	u.metrics.RecordRegistryWrite(string(models.AspectPeer), "updated")

	if existing.HostDetail == nil {
		if detail := u.locate(ctx, id.Host); detail != nil {
			if err := u.nodes.UpdateHostDetail(ctx, id, detail); err != nil {
				u.logger.WithError(err).WithField("node", id.String()).Warn("Failed to store host detail")
			}
		}
	}
	return nil
}

// UpdateAPI writes the API status of an existing node
func (u *RegistryUpdater) UpdateAPI(ctx context.Context, id models.NodeIdentity, api models.APIStatus) error {
	return u.write(models.AspectAPI, id, u.nodes.UpdateAPI(ctx, id, api))
}

// UpdateVoting writes the voting status of an existing node
func (u *RegistryUpdater) UpdateVoting(ctx context.Context, id models.NodeIdentity, voting models.VotingStatus) error {
	return u.write(models.AspectVoting, id, u.nodes.UpdateVoting(ctx, id, voting))
}

func (u *RegistryUpdater) write(aspect models.Aspect, id models.NodeIdentity, err error) error {
	if err != nil {
		u.metrics.RecordRegistryWrite(string(aspect), "error")
		return fmt.Errorf("failed to update %s status of %s: %w", aspect, id, err)
	}
	u.metrics.RecordRegistryWrite(string(aspect), "updated")
	return nil
}

// locate returns nil when no locator is set or the lookup fails
func (u *RegistryUpdater) locate(ctx context.Context, host string) *models.HostDetail {
	if u.geo == nil {
		return nil
	}
	detail, err := u.geo.Lookup(ctx, host)
	if err != nil {
		u.logger.WithError(err).WithField("host", host).Debug("Host location lookup failed")
		return nil
	}
	return detail
}
