package symbol

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

const (
	publicKeySize = 32
	hashSize      = 32

	// Ed25519 SubjectPublicKeyInfo is a 12 byte DER prefix followed by the key
	spkiKeyOffset = 12
)

// ChainStatistics is the CHAIN_STATISTICS body
type ChainStatistics struct {
	Height          uint64
	FinalizedHeight uint64
	ScoreHigh       uint64
	ScoreLow        uint64
}

// FinalizationStatistics is the FINALIZATION_STATISTICS body
type FinalizationStatistics struct {
	Epoch  uint32
	Point  uint32
	Height uint64
	Hash   string
}

// DecodeChainStatistics decodes height@0, finalized height@8, scoreHigh@16, scoreLow@24
func DecodeChainStatistics(payload []byte) (*ChainStatistics, error) {
	r := newReader(payload)
	stats := &ChainStatistics{}

	var err error
	if stats.Height, err = r.u64(); err != nil {
		return nil, err
	}
	if stats.FinalizedHeight, err = r.u64(); err != nil {
		return nil, err
	}
	if stats.ScoreHigh, err = r.u64(); err != nil {
		return nil, err
	}
	if stats.ScoreLow, err = r.u64(); err != nil {
		return nil, err
	}
	return stats, nil
}

// DecodeFinalizationStatistics decodes epoch@0, point@4, height@8, hash@16
func DecodeFinalizationStatistics(payload []byte) (*FinalizationStatistics, error) {
	r := newReader(payload)
	stats := &FinalizationStatistics{}

	var err error
	if stats.Epoch, err = r.u32(); err != nil {
		return nil, err
	}
	if stats.Point, err = r.u32(); err != nil {
		return nil, err
	}
	if stats.Height, err = r.u64(); err != nil {
		return nil, err
	}
	if stats.Hash, err = r.hex(hashSize); err != nil {
		return nil, err
	}
	return stats, nil
}

// NewChainInfo combines the two statistics packets into a ChainInfo
func NewChainInfo(chain *ChainStatistics, finalization *FinalizationStatistics) *models.ChainInfo {
	return &models.ChainInfo{
		Height:    chain.Height,
		ScoreHigh: chain.ScoreHigh,
		ScoreLow:  chain.ScoreLow,
		LatestFinalizedBlock: models.FinalizedBlock{
			FinalizationEpoch: finalization.Epoch,
			FinalizationPoint: finalization.Point,
			Height:            finalization.Height,
			Hash:              finalization.Hash,
		},
	}
}

// DecodeNodeInfo decodes a NODE_DISCOVERY_PULL_PING body. Certificate derived
// fields are left empty; see ApplyCertificate.
func DecodeNodeInfo(payload []byte) (*models.NodeInfo, error) {
	r := newReader(payload)
	peer, err := readNodePeer(r)
	if err != nil {
		return nil, err
	}
	return &models.NodeInfo{NodePeer: *peer}, nil
}

// DecodeNodePeers decodes a NODE_DISCOVERY_PULL_PEERS body: records packed
// back to back with no count prefix.
func DecodeNodePeers(payload []byte) ([]models.NodePeer, error) {
	r := newReader(payload)
	peers := make([]models.NodePeer, 0)
	for r.remaining() > 0 {
		peer, err := readNodePeer(r)
		if err != nil {
			return nil, fmt.Errorf("peer record %d: %w", len(peers), err)
		}
		peers = append(peers, *peer)
	}
	return peers, nil
}

// DecodeUnlockedAccounts decodes a flat list of 32 byte public keys
func DecodeUnlockedAccounts(payload []byte) ([]string, error) {
	if len(payload)%publicKeySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d",
			apperrors.ErrMalformedPayload, len(payload), publicKeySize)
	}

	r := newReader(payload)
	accounts := make([]string, 0, len(payload)/publicKeySize)
	for r.remaining() > 0 {
		key, err := r.hex(publicKeySize)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, key)
	}
	return accounts, nil
}

// readNodePeer reads one node record:
// size u32, version u32, publicKey [32], seed [32], roles u32, port u16,
// networkIdentifier u8, hostLength u8, friendlyNameLength u8, host, friendlyName.
func readNodePeer(r *reader) (*models.NodePeer, error) {
	start := r.pos
	peer := &models.NodePeer{}

	size, err := r.u32()
	if err != nil {
		return nil, err
	}
	if peer.Version, err = r.u32(); err != nil {
		return nil, err
	}
	if peer.PublicKey, err = r.hex(publicKeySize); err != nil {
		return nil, err
	}
	if peer.NetworkGenerationHashSeed, err = r.hex(hashSize); err != nil {
		return nil, err
	}
	if peer.Roles, err = r.u32(); err != nil {
		return nil, err
	}
	if peer.Port, err = r.u16(); err != nil {
		return nil, err
	}
	if peer.NetworkIdentifier, err = r.u8(); err != nil {
		return nil, err
	}
	hostLength, err := r.u8()
	if err != nil {
		return nil, err
	}
	friendlyNameLength, err := r.u8()
	if err != nil {
		return nil, err
	}
	if peer.Host, err = r.utf8(int(hostLength)); err != nil {
		return nil, err
	}
	if peer.FriendlyName, err = r.utf8(int(friendlyNameLength)); err != nil {
		return nil, err
	}

	// Records may carry trailing bytes newer servers add
	if consumed := r.pos - start; int(size) > consumed {
		if err := r.skip(int(size) - consumed); err != nil {
			return nil, err
		}
	}
	return peer, nil
}

// NodePublicKeyFromCertificate extracts the node public key from a peer certificate
func NodePublicKeyFromCertificate(cert *x509.Certificate) (string, error) {
	spki := cert.RawSubjectPublicKeyInfo
	if len(spki) < spkiKeyOffset+publicKeySize {
		return "", fmt.Errorf("%w: subject public key info is %d bytes", apperrors.ErrMalformedPayload, len(spki))
	}
	return strings.ToUpper(hex.EncodeToString(spki[spkiKeyOffset : spkiKeyOffset+publicKeySize])), nil
}

// ApplyCertificate stamps certificate derived fields onto info
func ApplyCertificate(info *models.NodeInfo, cert *x509.Certificate) error {
	if cert == nil {
		return nil
	}
	key, err := NodePublicKeyFromCertificate(cert)
	if err != nil {
		return err
	}
	expiresAt := cert.NotAfter.UTC().Truncate(time.Second)
	info.NodePublicKey = key
	info.CertificateExpirationDate = &expiresAt
	return nil
}
