package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestMongoNodeFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter models.NodeFilter
		want   bson.M
	}{
		{"empty filter matches all", models.NodeFilter{}, bson.M{}},
		{
			name: "listing defaults",
			filter: models.NodeFilter{
				HTTPSEnabled:  boolPtr(true),
				PeerAvailable: boolPtr(true),
				APIAvailable:  boolPtr(true),
			},
			want: bson.M{
				"api.isHttpsEnabled": true,
				"peer.isAvailable":   true,
				"api.isAvailable":    true,
			},
		},
		{
			name: "voting and tx search count",
			filter: models.NodeFilter{
				VotingEnabled:           boolPtr(true),
				MinTxSearchCountPerPage: intPtr(100),
			},
			want: bson.M{
				"voting.isVotingEnabled":   true,
				"api.txSearchCountPerPage": bson.M{"$gte": 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mongoNodeFilter(tt.filter))
		})
	}
}

func TestPostgresNodeFilter(t *testing.T) {
	where, args := postgresNodeFilter(models.NodeFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = postgresNodeFilter(models.NodeFilter{
		HTTPSEnabled:            boolPtr(false),
		APIAvailable:            boolPtr(true),
		MinTxSearchCountPerPage: intPtr(20),
	})
	assert.Equal(t,
		" WHERE (api->>'isHttpsEnabled')::boolean = $1 AND (api->>'isAvailable')::boolean = $2 AND (api->>'txSearchCountPerPage')::int >= $3",
		where)
	assert.Equal(t, []interface{}{false, true, 20}, args)
}

func TestCheckedAtColumn(t *testing.T) {
	column, err := checkedAtColumn(models.AspectVoting)
	require.NoError(t, err)
	assert.Equal(t, "voting_checked_at", column)

	_, err = checkedAtColumn(models.Aspect("bogus"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type memorySettings map[string]string

func (m memorySettings) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", apperrors.Wrap(apperrors.ErrNotFound, key)
}

func (m memorySettings) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestNetworkSettingsRoundTrip(t *testing.T) {
	store := memorySettings{}
	ctx := context.Background()

	_, err := loadNetworkSettings(ctx, store)
	assert.True(t, apperrors.IsConfiguration(err))

	want := &models.NetworkSettings{
		NetworkGenerationHashSeed: "57F7DA205008026C776CB6AED843393F04CD458E0AA2D9F1D5F31A402072B2D6",
		CurrencyMosaicID:          "6BED913FA20223F8",
		MinVoterBalance:           3000000000000,
	}
	require.NoError(t, saveNetworkSettings(ctx, store, want))
	assert.Equal(t, "3000000000000", store[models.SettingMinVoterBalance])

	got, err := loadNetworkSettings(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type failingSettings struct{}

func (failingSettings) Get(context.Context, string) (string, error) {
	return "", errors.New("connection reset")
}
func (failingSettings) Set(context.Context, string, string) error { return nil }

func TestLoadNetworkSettings_StoreFailure(t *testing.T) {
	_, err := loadNetworkSettings(context.Background(), failingSettings{})
	require.Error(t, err)
	assert.False(t, apperrors.IsConfiguration(err))
}
