package services

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
)

// NodeListQuery selects nodes for the listing endpoint. Limit 0 returns all
// matches; a positive limit returns a random sample of that size.
type NodeListQuery struct {
	Filter     models.NodeFilter
	Limit      int
	MinVersion *version.Version
}

// NodeView is the public JSON projection of a node. Dates are unix
// milliseconds and 64-bit amounts are decimal strings.
type NodeView struct {
	Version                   uint32           `json:"version"`
	VersionString             string           `json:"versionString"`
	Host                      string           `json:"host"`
	FriendlyName              string           `json:"friendlyName"`
	PublicKey                 string           `json:"publicKey"`
	Port                      uint16           `json:"port"`
	Roles                     uint32           `json:"roles"`
	NetworkIdentifier         uint8            `json:"networkIdentifier"`
	NetworkGenerationHashSeed string           `json:"networkGenerationHashSeed"`
	CertificateExpirationDate *int64           `json:"certificateExpirationDate,omitempty"`
	PeerStatus                PeerStatusView   `json:"peerStatus"`
	APIStatus                 APIStatusView    `json:"apiStatus"`
	VotingStatus              VotingStatusView `json:"votingStatus"`
	HostDetail                *HostDetailView  `json:"hostDetail,omitempty"`
	LastAvailable             *int64           `json:"lastAvailable,omitempty"`
}

type PeerStatusView struct {
	IsAvailable     bool   `json:"isAvailable"`
	LastStatusCheck *int64 `json:"lastStatusCheck,omitempty"`
}

type APIStatusView struct {
	RestGatewayURL       string                 `json:"restGatewayUrl"`
	IsAvailable          bool                   `json:"isAvailable"`
	IsHTTPSEnabled       bool                   `json:"isHttpsEnabled"`
	Harvesters           int                    `json:"harvesters"`
	LastStatusCheck      *int64                 `json:"lastStatusCheck,omitempty"`
	WebSocket            models.WebSocketStatus `json:"webSocket"`
	NodePublicKey        string                 `json:"nodePublicKey,omitempty"`
	ChainHeight          string                 `json:"chainHeight"`
	Finalization         *FinalizationView      `json:"finalization,omitempty"`
	TxSearchCountPerPage int                    `json:"txSearchCountPerPage"`
}

type FinalizationView struct {
	Height string `json:"height"`
	Epoch  uint32 `json:"epoch"`
	Point  uint32 `json:"point"`
	Hash   string `json:"hash"`
}

type VotingStatusView struct {
	VotingKey       *models.VotingKey `json:"votingKey,omitempty"`
	Balance         string            `json:"balance"`
	IsVotingEnabled bool              `json:"isVotingEnabled"`
	LastStatusCheck *int64            `json:"lastStatusCheck,omitempty"`
}

type HostDetailView struct {
	IP           string  `json:"ip"`
	Country      string  `json:"country"`
	CountryCode  string  `json:"countryCode"`
	City         string  `json:"city"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Organization string  `json:"organization"`
}

// NodeStats counts registered nodes per aspect
type NodeStats struct {
	Total           int64 `json:"total"`
	PeerAvailable   int64 `json:"peerAvailable"`
	APIAvailable    int64 `json:"apiAvailable"`
	HTTPSEnabled    int64 `json:"httpsEnabled"`
	VotingEnabled   int64 `json:"votingEnabled"`
	LastRefreshedAt int64 `json:"lastRefreshedAt"`
}

// NodeListService serves read queries over the registry
type NodeListService struct {
	nodes  repositories.NodeRepository
	logger *logrus.Logger
}

func NewNodeListService(nodes repositories.NodeRepository, logger *logrus.Logger) *NodeListService {
	return &NodeListService{nodes: nodes, logger: logger}
}

// List returns the nodes matching q
func (s *NodeListService) List(ctx context.Context, q NodeListQuery) ([]NodeView, error) {
	limit := q.Limit
	if q.MinVersion != nil {
		// The version is packed, so it is compared after loading
		limit = 0
	}

	nodes, err := s.nodes.Find(ctx, q.Filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes: %w", err)
	}

	if q.MinVersion != nil {
		nodes = filterMinVersion(nodes, q.MinVersion)
		if q.Limit > 0 && len(nodes) > q.Limit {
			rand.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
			nodes = nodes[:q.Limit]
		}
	}

	views := make([]NodeView, 0, len(nodes))
	for _, node := range nodes {
		views = append(views, ToNodeView(node))
	}
	return views, nil
}

// Stats counts the registry per aspect
func (s *NodeListService) Stats(ctx context.Context) (*NodeStats, error) {
	yes := true
	stats := &NodeStats{LastRefreshedAt: time.Now().UnixMilli()}
	counts := []struct {
		target *int64
		filter models.NodeFilter
	}{
		{&stats.Total, models.NodeFilter{}},
		{&stats.PeerAvailable, models.NodeFilter{PeerAvailable: &yes}},
		{&stats.APIAvailable, models.NodeFilter{APIAvailable: &yes}},
		{&stats.HTTPSEnabled, models.NodeFilter{HTTPSEnabled: &yes}},
		{&stats.VotingEnabled, models.NodeFilter{VotingEnabled: &yes}},
	}

	for _, c := range counts {
		count, err := s.nodes.Count(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count nodes: %w", err)
		}
		*c.target = count
	}
	return stats, nil
}

func filterMinVersion(nodes []*models.Node, minimum *version.Version) []*models.Node {
	filtered := make([]*models.Node, 0, len(nodes))
	for _, node := range nodes {
		v, err := models.NodeVersion(node.Peer.Version)
		if err != nil {
			continue
		}
		if v.GreaterThanOrEqual(minimum) {
			filtered = append(filtered, node)
		}
	}
	return filtered
}

// ToNodeView projects a stored node
func ToNodeView(n *models.Node) NodeView {
	view := NodeView{
		Version:                   n.Peer.Version,
		VersionString:             models.FormatNodeVersion(n.Peer.Version),
		Host:                      n.Host,
		FriendlyName:              n.Peer.FriendlyName,
		PublicKey:                 n.PublicKey,
		Port:                      n.Peer.Port,
		Roles:                     n.Peer.Roles,
		NetworkIdentifier:         n.Peer.NetworkIdentifier,
		NetworkGenerationHashSeed: n.Peer.NetworkGenerationHashSeed,
		CertificateExpirationDate: millis(n.Peer.CertificateExpirationDate),
		PeerStatus: PeerStatusView{
			IsAvailable:     n.Peer.IsAvailable,
			LastStatusCheck: millis(n.Peer.LastStatusCheck),
		},
		APIStatus: APIStatusView{
			RestGatewayURL:       n.API.RestGatewayURL,
			IsAvailable:          n.API.IsAvailable,
			IsHTTPSEnabled:       n.API.IsHTTPSEnabled,
			Harvesters:           n.API.Harvesters,
			LastStatusCheck:      millis(n.API.LastStatusCheck),
			WebSocket:            n.API.WebSocket,
			NodePublicKey:        n.Peer.NodePublicKey,
			ChainHeight:          strconv.FormatUint(n.Peer.ChainHeight, 10),
			TxSearchCountPerPage: n.API.TxSearchCountPerPage,
		},
		VotingStatus: VotingStatusView{
			VotingKey:       n.Voting.VotingKey,
			Balance:         strconv.FormatUint(n.Voting.AccountBalance, 10),
			IsVotingEnabled: n.Voting.IsVotingEnabled,
			LastStatusCheck: millis(n.Voting.LastStatusCheck),
		},
		LastAvailable: millis(n.Peer.LastStatusCheck),
	}

	if f := n.Peer.Finalization; f != nil {
		view.APIStatus.Finalization = &FinalizationView{
			Height: strconv.FormatUint(f.Height, 10),
			Epoch:  f.Epoch,
			Point:  f.Point,
			Hash:   f.Hash,
		}
	}

	if d := n.HostDetail; d != nil {
		view.HostDetail = &HostDetailView{
			IP:           d.IP,
			Country:      d.Country,
			CountryCode:  d.CountryCode,
			City:         d.City,
			Latitude:     d.Latitude,
			Longitude:    d.Longitude,
			Organization: d.Organization,
		}
	}

	return view
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
