package symbol

import (
	"encoding/binary"
	"fmt"

	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// PacketType identifies a request/response pair on the peer socket
type PacketType uint32

const (
	PacketChainStatistics        PacketType = 5
	PacketFinalizationStatistics PacketType = 0x132
	PacketNodeDiscoveryPullPing  PacketType = 0x111
	PacketNodeDiscoveryPullPeers PacketType = 0x113
	PacketUnlockedAccounts       PacketType = 0x304
)

const (
	// HeaderSize is the length of a packet header: u32 size, u32 type
	HeaderSize = 8

	// MaxPacketSize caps how much a single response may ask us to read
	MaxPacketSize = 16 * 1024 * 1024
)

// Path returns the REST path equivalent, used in log lines
func (t PacketType) Path() string {
	switch t {
	case PacketChainStatistics, PacketFinalizationStatistics:
		return "/chain/info"
	case PacketNodeDiscoveryPullPing:
		return "/node/info"
	case PacketNodeDiscoveryPullPeers:
		return "/node/peers"
	case PacketUnlockedAccounts:
		return "/node/unlockedaccount"
	}
	return fmt.Sprintf("/packet/%d", uint32(t))
}

func (t PacketType) String() string {
	switch t {
	case PacketChainStatistics:
		return "CHAIN_STATISTICS"
	case PacketFinalizationStatistics:
		return "FINALIZATION_STATISTICS"
	case PacketNodeDiscoveryPullPing:
		return "NODE_DISCOVERY_PULL_PING"
	case PacketNodeDiscoveryPullPeers:
		return "NODE_DISCOVERY_PULL_PEERS"
	case PacketUnlockedAccounts:
		return "UNLOCKED_ACCOUNTS"
	}
	return fmt.Sprintf("PacketType(%d)", uint32(t))
}

// EncodeRequest builds the body-less request header for packetType
func EncodeRequest(packetType PacketType) []byte {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], HeaderSize)
	binary.LittleEndian.PutUint32(header[4:8], uint32(packetType))
	return header
}

// ParseResponseHeader validates a response header against the expected type
// and returns the number of body bytes that follow it.
func ParseResponseHeader(header []byte, expected PacketType) (int, error) {
	if len(header) < HeaderSize {
		return 0, fmt.Errorf("%w: short header (%d bytes)", apperrors.ErrMalformedPayload, len(header))
	}

	size := binary.LittleEndian.Uint32(header[0:4])
	packetType := PacketType(binary.LittleEndian.Uint32(header[4:8]))

	switch {
	case size == 0:
		return 0, fmt.Errorf("%w: empty response", apperrors.ErrMalformedPayload)
	case size < HeaderSize:
		return 0, fmt.Errorf("%w: response size %d smaller than header", apperrors.ErrMalformedPayload, size)
	case size > MaxPacketSize:
		return 0, fmt.Errorf("%w: response size %d exceeds limit", apperrors.ErrMalformedPayload, size)
	case packetType != expected:
		return 0, fmt.Errorf("%w: expected packet type %s, got %s", apperrors.ErrMalformedPayload, expected, packetType)
	}

	return int(size) - HeaderSize, nil
}
