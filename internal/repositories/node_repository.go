package repositories

import (
	"context"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
)

// NodeRepository defines the interface for node registry access.
// FindOne and FindRandomAPIAvailable return nil, nil when nothing matches.
type NodeRepository interface {
	FindOne(ctx context.Context, id models.NodeIdentity) (*models.Node, error)
	Create(ctx context.Context, node *models.Node) error

	// Each update writes only its own sub-record
	UpdatePeer(ctx context.Context, id models.NodeIdentity, peer models.PeerStatus) error
	UpdateAPI(ctx context.Context, id models.NodeIdentity, api models.APIStatus) error
	UpdateVoting(ctx context.Context, id models.NodeIdentity, voting models.VotingStatus) error
	UpdateHostDetail(ctx context.Context, id models.NodeIdentity, detail *models.HostDetail) error

	// FindStale orders by the aspect's lastStatusCheck, never checked first
	FindStale(ctx context.Context, aspect models.Aspect, limit int) ([]*models.Node, error)
	FindRandomAPIAvailable(ctx context.Context) (*models.Node, error)
	// Find returns every match when limit is 0, otherwise a random sample
	Find(ctx context.Context, filter models.NodeFilter, limit int) ([]*models.Node, error)
	Count(ctx context.Context, filter models.NodeFilter) (int64, error)

	Ping(ctx context.Context) error
}

// SettingsRepository stores the network key/value settings
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetNetworkSettings(ctx context.Context) (*models.NetworkSettings, error)
	SaveNetworkSettings(ctx context.Context, settings *models.NetworkSettings) error
}
