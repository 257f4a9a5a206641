package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
)

func listedNode(host string, v uint32, https bool) *models.Node {
	checked := testTime
	return &models.Node{
		Host:      host,
		PublicKey: "PK-" + host,
		Peer: models.PeerStatus{
			Version:         v,
			Port:            7900,
			IsAvailable:     true,
			LastStatusCheck: &checked,
		},
		API: models.APIStatus{IsAvailable: true, IsHTTPSEnabled: https},
	}
}

func TestToNodeView(t *testing.T) {
	expiry := testTime.AddDate(1, 0, 0)
	node := listedNode("a.example", 16777990, true)
	node.Peer.CertificateExpirationDate = &expiry
	node.Peer.NodePublicKey = "NODEKEY"
	node.Peer.ChainHeight = 18446744073709551615
	node.Peer.Finalization = &models.Finalization{Height: 9007199254740993, Epoch: 5, Point: 2, Hash: "FF"}
	node.Voting.AccountBalance = 3000000000001

	raw, err := json.Marshal(ToNodeView(node))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, "1.0.3.6", body["versionString"])
	assert.Equal(t, float64(expiry.UnixMilli()), body["certificateExpirationDate"])
	assert.Equal(t, float64(testTime.UnixMilli()), body["lastAvailable"])

	api := body["apiStatus"].(map[string]interface{})
	assert.Equal(t, "18446744073709551615", api["chainHeight"])
	assert.Equal(t, "NODEKEY", api["nodePublicKey"])
	assert.Equal(t, "9007199254740993", api["finalization"].(map[string]interface{})["height"])

	voting := body["votingStatus"].(map[string]interface{})
	assert.Equal(t, "3000000000001", voting["balance"])
	assert.NotContains(t, voting, "votingKey")
	assert.NotContains(t, body, "hostDetail")
}

func TestToNodeView_OmitsMissingObjects(t *testing.T) {
	view := ToNodeView(&models.Node{Host: "bare.example", PublicKey: "B"})

	assert.Nil(t, view.APIStatus.Finalization)
	assert.Nil(t, view.HostDetail)
	assert.Nil(t, view.VotingStatus.VotingKey)
	assert.Nil(t, view.LastAvailable)
	assert.Equal(t, "0", view.APIStatus.ChainHeight)
	assert.Equal(t, "0.0.0.0", view.VersionString)
}

func TestNodeListService_List(t *testing.T) {
	repo := newFakeNodeRepo(
		listedNode("old.example", 0x01000200, true),
		listedNode("new.example", 0x01000306, true),
		listedNode("newest.example", 0x01000400, true),
		listedNode("plain.example", 0x01000400, false),
	)
	svc := NewNodeListService(repo, newTestLogger())
	ctx := context.Background()
	yes := true

	views, err := svc.List(ctx, NodeListQuery{Filter: models.NodeFilter{HTTPSEnabled: &yes}})
	require.NoError(t, err)
	assert.Len(t, views, 3)

	minVersion := version.Must(version.NewVersion("1.0.3.0"))
	views, err = svc.List(ctx, NodeListQuery{Filter: models.NodeFilter{HTTPSEnabled: &yes}, MinVersion: minVersion})
	require.NoError(t, err)
	hosts := make([]string, 0, len(views))
	for _, v := range views {
		hosts = append(hosts, v.Host)
	}
	assert.ElementsMatch(t, []string{"new.example", "newest.example"}, hosts)

	views, err = svc.List(ctx, NodeListQuery{MinVersion: minVersion, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestNodeListService_Stats(t *testing.T) {
	plain := listedNode("plain.example", 1, false)
	plain.Voting.IsVotingEnabled = true
	repo := newFakeNodeRepo(listedNode("a.example", 1, true), plain)
	svc := NewNodeListService(repo, newTestLogger())

	stats, err := svc.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.PeerAvailable)
	assert.Equal(t, int64(1), stats.HTTPSEnabled)
	assert.Equal(t, int64(1), stats.VotingEnabled)
}
