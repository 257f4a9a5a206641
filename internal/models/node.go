package models

import (
	"fmt"
	"time"
)

// Aspect identifies an independently probed facet of a node.
type Aspect string

const (
	AspectPeer   Aspect = "peer"
	AspectAPI    Aspect = "api"
	AspectVoting Aspect = "voting"
)

// Valid reports whether the aspect is one of the known values
func (a Aspect) Valid() bool {
	switch a {
	case AspectPeer, AspectAPI, AspectVoting:
		return true
	}
	return false
}

// NodeIdentity is the natural key of a node record
type NodeIdentity struct {
	Host      string `json:"host" bson:"host"`
	PublicKey string `json:"publicKey" bson:"publicKey"`
}

// Key returns the map key used to deduplicate identities within a crawl round
func (id NodeIdentity) Key() string {
	return id.Host + "," + id.PublicKey
}

func (id NodeIdentity) String() string {
	return fmt.Sprintf("%s/%s", id.Host, id.PublicKey)
}

// Node is the persisted registry record
type Node struct {
	Host       string       `json:"host" bson:"host"`
	PublicKey  string       `json:"publicKey" bson:"publicKey"`
	Peer       PeerStatus   `json:"peer" bson:"peer"`
	API        APIStatus    `json:"api" bson:"api"`
	Voting     VotingStatus `json:"voting" bson:"voting"`
	HostDetail *HostDetail  `json:"hostDetail,omitempty" bson:"hostDetail,omitempty"`
	CreatedAt  time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Identity returns the natural key of the node
func (n *Node) Identity() NodeIdentity {
	return NodeIdentity{Host: n.Host, PublicKey: n.PublicKey}
}

// PeerStatus holds gossip reachability fields
type PeerStatus struct {
	Port                      uint16        `json:"port" bson:"port"`
	FriendlyName              string        `json:"friendlyName" bson:"friendlyName"`
	Version                   uint32        `json:"version" bson:"version"`
	NetworkGenerationHashSeed string        `json:"networkGenerationHashSeed" bson:"networkGenerationHashSeed"`
	Roles                     uint32        `json:"roles" bson:"roles"`
	NetworkIdentifier         uint8         `json:"networkIdentifier" bson:"networkIdentifier"`
	NodePublicKey             string        `json:"nodePublicKey,omitempty" bson:"nodePublicKey,omitempty"`
	CertificateExpirationDate *time.Time    `json:"certificateExpirationDate,omitempty" bson:"certificateExpirationDate,omitempty"`
	ChainHeight               uint64        `json:"chainHeight,omitempty" bson:"chainHeight,omitempty"`
	Finalization              *Finalization `json:"finalization,omitempty" bson:"finalization,omitempty"`
	IsAvailable               bool          `json:"isAvailable" bson:"isAvailable"`
	LastStatusCheck           *time.Time    `json:"lastStatusCheck,omitempty" bson:"lastStatusCheck,omitempty"`
}

// Finalization is the latest finalized block reported by a node
type Finalization struct {
	Height uint64 `json:"height" bson:"height"`
	Epoch  uint32 `json:"epoch" bson:"epoch"`
	Point  uint32 `json:"point" bson:"point"`
	Hash   string `json:"hash" bson:"hash"`
}

// APIStatus holds REST gateway reachability fields
type APIStatus struct {
	RestGatewayURL       string          `json:"restGatewayUrl" bson:"restGatewayUrl"`
	IsHTTPSEnabled       bool            `json:"isHttpsEnabled" bson:"isHttpsEnabled"`
	Harvesters           int             `json:"harvesters" bson:"harvesters"`
	WebSocket            WebSocketStatus `json:"webSocket" bson:"webSocket"`
	IsAvailable          bool            `json:"isAvailable" bson:"isAvailable"`
	TxSearchCountPerPage int             `json:"txSearchCountPerPage" bson:"txSearchCountPerPage"`
	LastStatusCheck      *time.Time      `json:"lastStatusCheck,omitempty" bson:"lastStatusCheck,omitempty"`
}

type WebSocketStatus struct {
	IsAvailable bool   `json:"isAvailable" bson:"isAvailable"`
	WSS         bool   `json:"wss" bson:"wss"`
	URL         string `json:"url" bson:"url"`
}

// VotingStatus holds finalization voting eligibility fields
type VotingStatus struct {
	VotingKey       *VotingKey `json:"votingKey,omitempty" bson:"votingKey,omitempty"`
	AccountBalance  uint64     `json:"accountBalance" bson:"accountBalance"`
	IsVotingEnabled bool       `json:"isVotingEnabled" bson:"isVotingEnabled"`
	LastStatusCheck *time.Time `json:"lastStatusCheck,omitempty" bson:"lastStatusCheck,omitempty"`
}

type VotingKey struct {
	PublicKey  string `json:"publicKey" bson:"publicKey"`
	StartEpoch uint32 `json:"startEpoch" bson:"startEpoch"`
	EndEpoch   uint32 `json:"endEpoch" bson:"endEpoch"`
}

// CoversEpoch reports whether epoch lies within the key's validity range
func (k *VotingKey) CoversEpoch(epoch uint32) bool {
	if k == nil {
		return false
	}
	return k.StartEpoch <= epoch && epoch <= k.EndEpoch
}

// NodeFilter selects nodes for the listing endpoint. Nil fields are not applied.
type NodeFilter struct {
	HTTPSEnabled            *bool
	PeerAvailable           *bool
	APIAvailable            *bool
	VotingEnabled           *bool
	MinTxSearchCountPerPage *int
}

// NodePeerFromNode rebuilds the announcement a stored node was created from
func NodePeerFromNode(n *Node) NodePeer {
	return NodePeer{
		Version:                   n.Peer.Version,
		PublicKey:                 n.PublicKey,
		NetworkGenerationHashSeed: n.Peer.NetworkGenerationHashSeed,
		Roles:                     n.Peer.Roles,
		Port:                      n.Peer.Port,
		NetworkIdentifier:         n.Peer.NetworkIdentifier,
		Host:                      n.Host,
		FriendlyName:              n.Peer.FriendlyName,
	}
}
