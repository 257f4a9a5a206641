package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// NodePeer is a node as announced by another node's peer list
type NodePeer struct {
	Version                   uint32 `json:"version"`
	PublicKey                 string `json:"publicKey"`
	NetworkGenerationHashSeed string `json:"networkGenerationHashSeed"`
	Roles                     uint32 `json:"roles"`
	Port                      uint16 `json:"port"`
	NetworkIdentifier         uint8  `json:"networkIdentifier"`
	Host                      string `json:"host"`
	FriendlyName              string `json:"friendlyName"`
}

// Identity returns the natural key of the announced node
func (p *NodePeer) Identity() NodeIdentity {
	return NodeIdentity{Host: p.Host, PublicKey: p.PublicKey}
}

// NodeInfo is a node's self-reported identity. NodePublicKey and
// CertificateExpirationDate come from the TLS certificate when fetched over the socket.
type NodeInfo struct {
	NodePeer
	NodePublicKey             string     `json:"nodePublicKey,omitempty"`
	CertificateExpirationDate *time.Time `json:"certificateExpirationDate,omitempty"`
	IsHTTPSEnabled            bool       `json:"isHttpsEnabled"`
}

// ChainInfo is the chain tip reported by a node
type ChainInfo struct {
	Height               uint64         `json:"height,string"`
	ScoreHigh            uint64         `json:"scoreHigh,string"`
	ScoreLow             uint64         `json:"scoreLow,string"`
	LatestFinalizedBlock FinalizedBlock `json:"latestFinalizedBlock"`
}

type FinalizedBlock struct {
	FinalizationEpoch uint32 `json:"finalizationEpoch"`
	FinalizationPoint uint32 `json:"finalizationPoint"`
	Height            uint64 `json:"height,string"`
	Hash              string `json:"hash"`
}

// UnlockedAccounts lists the public keys currently unlocked for harvesting
type UnlockedAccounts struct {
	UnlockedAccount []string `json:"unlockedAccount"`
}

// NetworkProperties is the subset of /network/properties the tracker needs
type NetworkProperties struct {
	Network struct {
		Identifier         string `json:"identifier"`
		GenerationHashSeed string `json:"generationHashSeed"`
	} `json:"network"`
	Chain struct {
		CurrencyMosaicID string `json:"currencyMosaicId"`
		MinVoterBalance  string `json:"minVoterBalance"`
	} `json:"chain"`
}

// AccountInfo is the subset of /accounts/{publicKey} the voting check needs
type AccountInfo struct {
	Account struct {
		PublicKey              string `json:"publicKey"`
		SupplementalPublicKeys struct {
			Voting *struct {
				PublicKeys []VotingKey `json:"publicKeys"`
			} `json:"voting,omitempty"`
		} `json:"supplementalPublicKeys"`
		Mosaics []Mosaic `json:"mosaics"`
	} `json:"account"`
}

type Mosaic struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount,string"`
}

// CurrentVotingKey returns the highest indexed voting key, or nil if none
func (a *AccountInfo) CurrentVotingKey() *VotingKey {
	if a == nil || a.Account.SupplementalPublicKeys.Voting == nil {
		return nil
	}
	keys := a.Account.SupplementalPublicKeys.Voting.PublicKeys
	if len(keys) == 0 {
		return nil
	}
	key := keys[len(keys)-1]
	return &key
}

// Balance returns the amount held of the given mosaic id (upper-case hex)
func (a *AccountInfo) Balance(mosaicID string) uint64 {
	if a == nil {
		return 0
	}
	for _, m := range a.Account.Mosaics {
		if strings.EqualFold(m.ID, mosaicID) {
			return m.Amount
		}
	}
	return 0
}

// FormatNodeVersion renders the packed node version as a dotted string.
// 16777990 (0x01000306) becomes "1.0.3.6".
func FormatNodeVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xFF, (v>>8)&0xFF, v&0xFF)
}

// NodeVersion parses the packed node version for comparisons
func NodeVersion(v uint32) (*version.Version, error) {
	return version.NewVersion(FormatNodeVersion(v))
}
