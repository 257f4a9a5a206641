package symbol

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// SocketClient speaks the binary peer protocol over TLS. Every call opens
// its own connection, sends one request header and reads one response.
type SocketClient struct {
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewSocketClient creates a client presenting cert to peers. The peer's
// certificate is not verified: nodes use self-issued chains.
func NewSocketClient(cert tls.Certificate, timeout time.Duration) *SocketClient {
	return &SocketClient{
		tlsConfig: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		},
		timeout: timeout,
	}
}

// GetNodeInfo sends NODE_DISCOVERY_PULL_PING and stamps certificate fields
func (c *SocketClient) GetNodeInfo(ctx context.Context, host string, port int) (*models.NodeInfo, error) {
	payload, cert, err := c.request(ctx, host, port, PacketNodeDiscoveryPullPing)
	if err != nil {
		return nil, err
	}

	info, err := DecodeNodeInfo(payload)
	if err != nil {
		return nil, apperrors.Transport(err, "decode node info from %s", host)
	}
	if err := ApplyCertificate(info, cert); err != nil {
		return nil, apperrors.Transport(err, "read certificate of %s", host)
	}
	return info, nil
}

// GetNodePeers sends NODE_DISCOVERY_PULL_PEERS
func (c *SocketClient) GetNodePeers(ctx context.Context, host string, port int) ([]models.NodePeer, error) {
	payload, _, err := c.request(ctx, host, port, PacketNodeDiscoveryPullPeers)
	if err != nil {
		return nil, err
	}

	peers, err := DecodeNodePeers(payload)
	if err != nil {
		return nil, apperrors.Transport(err, "decode node peers from %s", host)
	}
	return peers, nil
}

// GetChainInfo issues CHAIN_STATISTICS and FINALIZATION_STATISTICS concurrently
func (c *SocketClient) GetChainInfo(ctx context.Context, host string, port int) (*models.ChainInfo, error) {
	var (
		chain        *ChainStatistics
		finalization *FinalizationStatistics
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		payload, _, err := c.request(gctx, host, port, PacketChainStatistics)
		if err != nil {
			return err
		}
		chain, err = DecodeChainStatistics(payload)
		return apperrors.Transport(err, "decode chain statistics from %s", host)
	})
	g.Go(func() error {
		payload, _, err := c.request(gctx, host, port, PacketFinalizationStatistics)
		if err != nil {
			return err
		}
		finalization, err = DecodeFinalizationStatistics(payload)
		return apperrors.Transport(err, "decode finalization statistics from %s", host)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewChainInfo(chain, finalization), nil
}

// GetUnlockedAccounts sends UNLOCKED_ACCOUNTS
func (c *SocketClient) GetUnlockedAccounts(ctx context.Context, host string, port int) ([]string, error) {
	payload, _, err := c.request(ctx, host, port, PacketUnlockedAccounts)
	if err != nil {
		return nil, err
	}

	accounts, err := DecodeUnlockedAccounts(payload)
	if err != nil {
		return nil, apperrors.Transport(err, "decode unlocked accounts from %s", host)
	}
	return accounts, nil
}

// request performs one round trip and returns the response body together
// with the peer's leaf certificate.
func (c *SocketClient) request(ctx context.Context, host string, port int, packetType PacketType) ([]byte, *x509.Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: c.tlsConfig}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, apperrors.Transport(err, "dial %s", addr)
	}
	defer conn.Close()

	// The deadline covers the write and both reads
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, nil, apperrors.Transport(err, "set deadline on %s", addr)
		}
	}

	if _, err := conn.Write(EncodeRequest(packetType)); err != nil {
		return nil, nil, apperrors.Transport(err, "write %s to %s", packetType, addr)
	}

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, nil, apperrors.Transport(err, "read %s header from %s", packetType, addr)
	}

	bodySize, err := ParseResponseHeader(header, packetType)
	if err != nil {
		return nil, nil, apperrors.Transport(err, "%s from %s", packetType, addr)
	}

	body := make([]byte, bodySize)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, nil, apperrors.Transport(err, "read %s body from %s", packetType, addr)
	}

	var leaf *x509.Certificate
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if certs := tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
			leaf = certs[0]
		}
	}

	return body, leaf, nil
}
