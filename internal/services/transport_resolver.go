package services

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/symbol"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// SocketNodeClient talks the binary peer protocol
type SocketNodeClient interface {
	GetNodeInfo(ctx context.Context, host string, port int) (*models.NodeInfo, error)
	GetNodePeers(ctx context.Context, host string, port int) ([]models.NodePeer, error)
	GetChainInfo(ctx context.Context, host string, port int) (*models.ChainInfo, error)
	GetUnlockedAccounts(ctx context.Context, host string, port int) ([]string, error)
}

// RestNodeClient talks to a node's REST gateway
type RestNodeClient interface {
	HTTPSProber
	Port(https bool) int
	BaseURL(host string, https bool) string

	GetNodeInfo(ctx context.Context, host string, https bool) (*models.NodeInfo, error)
	TryHTTPSNodeInfo(ctx context.Context, host string) (*models.NodeInfo, error)
	GetNodePeers(ctx context.Context, host string, https bool) ([]models.NodePeer, error)
	GetChainInfo(ctx context.Context, host string, https bool) (*models.ChainInfo, error)
	GetUnlockedAccounts(ctx context.Context, host string, https bool) ([]string, error)
	GetNetworkProperties(ctx context.Context, host string, https bool) (*models.NetworkProperties, error)
	TryHTTPSNetworkProperties(ctx context.Context, host string) (*models.NetworkProperties, error)
	GetAccountInfo(ctx context.Context, host string, https bool, publicKey string) (*models.AccountInfo, error)
	GetTxSearchCountPerPage(ctx context.Context, host string, https bool) (int, error)
}

// TransportResolver asks a node over the peer socket first and falls back to
// its REST gateway. A failed lookup returns the zero value; the cause is logged.
type TransportResolver struct {
	socket  SocketNodeClient
	rest    RestNodeClient
	https   HTTPSProber
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewTransportResolver wires the two clients. https decides per host whether
// the REST fallback tries HTTPS before HTTP.
func NewTransportResolver(socket SocketNodeClient, rest RestNodeClient, https HTTPSProber, m *metrics.Metrics, logger *logrus.Logger) *TransportResolver {
	return &TransportResolver{
		socket:  socket,
		rest:    rest,
		https:   https,
		metrics: m,
		logger:  logger,
	}
}

// Rest exposes the REST client for gateway-only checks
func (r *TransportResolver) Rest() RestNodeClient {
	return r.rest
}

// HTTPSEnabled returns the cached HTTPS capability of host
func (r *TransportResolver) HTTPSEnabled(ctx context.Context, host string) bool {
	return r.https.IsHTTPSEnabled(ctx, host)
}

// NodeInfo returns nil when neither transport answered
func (r *TransportResolver) NodeInfo(ctx context.Context, host string, port int) *models.NodeInfo {
	info, _ := resolve(ctx, r, host, port, symbol.PacketNodeDiscoveryPullPing.Path(), r.socket.GetNodeInfo, r.rest.GetNodeInfo)
	return info
}

// NodePeers returns nil when neither transport answered
func (r *TransportResolver) NodePeers(ctx context.Context, host string, port int) []models.NodePeer {
	peers, _ := resolve(ctx, r, host, port, symbol.PacketNodeDiscoveryPullPeers.Path(), r.socket.GetNodePeers, r.rest.GetNodePeers)
	return peers
}

// ChainInfo returns nil when neither transport answered
func (r *TransportResolver) ChainInfo(ctx context.Context, host string, port int) *models.ChainInfo {
	info, _ := resolve(ctx, r, host, port, symbol.PacketChainStatistics.Path(), r.socket.GetChainInfo, r.rest.GetChainInfo)
	return info
}

// UnlockedAccounts reports ok=false when neither transport answered
func (r *TransportResolver) UnlockedAccounts(ctx context.Context, host string, port int) ([]string, bool) {
	return resolve(ctx, r, host, port, symbol.PacketUnlockedAccounts.Path(), r.socket.GetUnlockedAccounts, r.rest.GetUnlockedAccounts)
}

func resolve[T any](
	ctx context.Context,
	r *TransportResolver,
	host string,
	port int,
	path string,
	socket func(context.Context, string, int) (T, error),
	rest func(context.Context, string, bool) (T, error),
) (T, bool) {
	start := time.Now()
	result, err := socket(ctx, host, port)
	r.record("socket", host, port, path, err, time.Since(start))
	if err == nil {
		return result, true
	}

	schemes := []bool{false}
	if r.https.IsHTTPSEnabled(ctx, host) {
		schemes = []bool{true, false}
	}

	for _, https := range schemes {
		start = time.Now()
		result, err = rest(ctx, host, https)
		r.record(scheme(https), host, r.rest.Port(https), path, err, time.Since(start))
		if err == nil {
			return result, true
		}
	}

	var zero T
	return zero, false
}

func (r *TransportResolver) record(transport, host string, port int, path string, err error, duration time.Duration) {
	r.metrics.RecordTransport(transport, path, err == nil, duration)

	target := fmt.Sprintf("%s%s", net.JoinHostPort(host, strconv.Itoa(port)), path)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"transport": transport,
			"error":     err.Error(),
		}).Warnf("[NG] %s", target)
		return
	}
	r.logger.WithField("transport", transport).Infof("[OK] %s", target)
}

func scheme(https bool) string {
	if https {
		return "https"
	}
	return "http"
}

// MergeNodeInfo combines a REST and a socket view of the same node. REST
// wins for announced fields; the certificate fields only exist on the socket side.
func MergeNodeInfo(rest, socket *models.NodeInfo) *models.NodeInfo {
	if rest == nil {
		return socket
	}
	if socket == nil {
		return rest
	}

	merged := *rest
	if socket.NodePublicKey != "" {
		merged.NodePublicKey = socket.NodePublicKey
	}
	if socket.CertificateExpirationDate != nil {
		expiry := *socket.CertificateExpirationDate
		merged.CertificateExpirationDate = &expiry
	}
	return &merged
}
