package symbol

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// peerServer is a minimal TLS peer answering one request per connection
type peerServer struct {
	listener net.Listener
	leaf     *x509.Certificate
	handler  func(packetType PacketType) []byte
}

func newPeerServer(t *testing.T, handler func(packetType PacketType) []byte) *peerServer {
	t.Helper()

	cert, err := GenerateClientCertificate(time.Now())
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequestClientCert,
	})
	require.NoError(t, err)

	s := &peerServer{listener: listener, leaf: leaf, handler: handler}
	go s.serve()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *peerServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			header := make([]byte, HeaderSize)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			response := s.handler(PacketType(binary.LittleEndian.Uint32(header[4:8])))
			if response != nil {
				_, _ = conn.Write(response)
			}
		}(conn)
	}
}

func (s *peerServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(s.listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func frame(packetType PacketType, body []byte) []byte {
	b := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(b[0:4], uint32(HeaderSize+len(body)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(packetType))
	return append(b, body...)
}

func newTestSocketClient(t *testing.T, timeout time.Duration) *SocketClient {
	t.Helper()
	cert, err := GenerateClientCertificate(time.Now())
	require.NoError(t, err)
	return NewSocketClient(cert, timeout)
}

func fixtureResponder(t *testing.T) func(PacketType) []byte {
	return func(packetType PacketType) []byte {
		switch packetType {
		case PacketNodeDiscoveryPullPing:
			return frame(packetType, mustHex(t, nodeInfoHex))
		case PacketNodeDiscoveryPullPeers:
			return frame(packetType, append(mustHex(t, nodeInfoHex), mustHex(t, nodeInfoHex)...))
		case PacketChainStatistics:
			return frame(packetType, mustHex(t, chainStatisticsHex))
		case PacketFinalizationStatistics:
			return frame(packetType, mustHex(t, finalizationStatisticsHex))
		case PacketUnlockedAccounts:
			return frame(packetType, mustHex(t, fixturePublicKey))
		}
		return nil
	}
}

func TestSocketClient_GetNodeInfo(t *testing.T) {
	server := newPeerServer(t, fixtureResponder(t))
	host, port := server.hostPort(t)
	client := newTestSocketClient(t, 2*time.Second)

	info, err := client.GetNodeInfo(context.Background(), host, port)
	require.NoError(t, err)

	assert.Equal(t, fixturePublicKey, info.PublicKey)
	assert.Equal(t, "peervoting@4", info.FriendlyName)
	assert.Equal(t, uint16(7900), info.Port)

	wantKey := strings.ToUpper(hex.EncodeToString(server.leaf.RawSubjectPublicKeyInfo[12:44]))
	assert.Equal(t, wantKey, info.NodePublicKey)
	require.NotNil(t, info.CertificateExpirationDate)
	assert.Equal(t, server.leaf.NotAfter.UTC().Truncate(time.Second), *info.CertificateExpirationDate)
}

func TestSocketClient_GetChainInfo(t *testing.T) {
	server := newPeerServer(t, fixtureResponder(t))
	host, port := server.hostPort(t)
	client := newTestSocketClient(t, 2*time.Second)

	info, err := client.GetChainInfo(context.Background(), host, port)
	require.NoError(t, err)

	assert.Equal(t, uint64(1153108), info.Height)
	assert.Equal(t, uint32(1603), info.LatestFinalizedBlock.FinalizationEpoch)
	assert.Equal(t, uint64(1153080), info.LatestFinalizedBlock.Height)
}

func TestSocketClient_PeersAndAccounts(t *testing.T) {
	server := newPeerServer(t, fixtureResponder(t))
	host, port := server.hostPort(t)
	client := newTestSocketClient(t, 2*time.Second)

	peers, err := client.GetNodePeers(context.Background(), host, port)
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	accounts, err := client.GetUnlockedAccounts(context.Background(), host, port)
	require.NoError(t, err)
	assert.Equal(t, []string{fixturePublicKey}, accounts)
}

func TestSocketClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler func(PacketType) []byte
		timeout time.Duration
	}{
		{
			name:    "packet type mismatch",
			handler: func(PacketType) []byte { return frame(PacketChainStatistics, make([]byte, 32)) },
			timeout: 2 * time.Second,
		},
		{
			name:    "empty response",
			handler: func(p PacketType) []byte { return make([]byte, HeaderSize) },
			timeout: 2 * time.Second,
		},
		{
			name: "body shorter than announced",
			handler: func(p PacketType) []byte {
				b := frame(p, mustHex(t, nodeInfoHex))
				return b[:len(b)-20]
			},
			timeout: 2 * time.Second,
		},
		{
			name:    "malformed body",
			handler: func(p PacketType) []byte { return frame(p, mustHex(t, nodeInfoHex)[:60]) },
			timeout: 2 * time.Second,
		},
		{
			name: "silent peer",
			handler: func(PacketType) []byte {
				time.Sleep(time.Second)
				return nil
			},
			timeout: 200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPeerServer(t, tt.handler)
			host, port := server.hostPort(t)
			client := newTestSocketClient(t, tt.timeout)

			info, err := client.GetNodeInfo(context.Background(), host, port)
			assert.Nil(t, info)
			assert.True(t, apperrors.IsTransport(err), "expected transport failure, got %v", err)
		})
	}
}

func TestSocketClient_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	client := newTestSocketClient(t, time.Second)
	_, err = client.GetChainInfo(context.Background(), "127.0.0.1", addr.Port)
	assert.True(t, apperrors.IsTransport(err))
}
