package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

var networkSettingKeys = []string{
	models.SettingNetworkGenerationHashSeed,
	models.SettingCurrencyMosaicID,
	models.SettingMinVoterBalance,
}

type settingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// loadNetworkSettings reads the three network keys through store
func loadNetworkSettings(ctx context.Context, store settingsStore) (*models.NetworkSettings, error) {
	values := make(map[string]string, len(networkSettingKeys))
	for _, key := range networkSettingKeys {
		value, err := store.Get(ctx, key)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[key] = value
	}

	settings, err := models.NetworkSettingsFromValues(values)
	var missing *models.MissingSettingError
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	return settings, err
}

func saveNetworkSettings(ctx context.Context, store settingsStore, settings *models.NetworkSettings) error {
	for key, value := range settings.Values() {
		if err := store.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

type mongoSettingsRepository struct {
	settings *mongo.Collection
}

// NewMongoSettingsRepository creates a settings repository backed by the given collection
func NewMongoSettingsRepository(db *mongo.Database, collection string) SettingsRepository {
	return &mongoSettingsRepository{settings: db.Collection(collection)}
}

func (r *mongoSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := r.settings.FindOne(ctx, bson.M{"key": key}).Decode(&setting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("setting %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return setting.Value, nil
}

func (r *mongoSettingsRepository) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"value": value, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}

	_, err := r.settings.UpdateOne(ctx, bson.M{"key": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *mongoSettingsRepository) GetNetworkSettings(ctx context.Context) (*models.NetworkSettings, error) {
	return loadNetworkSettings(ctx, r)
}

func (r *mongoSettingsRepository) SaveNetworkSettings(ctx context.Context, settings *models.NetworkSettings) error {
	return saveNetworkSettings(ctx, r, settings)
}

type postgresSettingsRepository struct {
	db *sql.DB
}

// NewPostgresSettingsRepository creates a settings repository on the settings table
func NewPostgresSettingsRepository(db *sql.DB) SettingsRepository {
	return &postgresSettingsRepository{db: db}
}

func (r *postgresSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *postgresSettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *postgresSettingsRepository) GetNetworkSettings(ctx context.Context) (*models.NetworkSettings, error) {
	return loadNetworkSettings(ctx, r)
}

func (r *postgresSettingsRepository) SaveNetworkSettings(ctx context.Context, settings *models.NetworkSettings) error {
	return saveNetworkSettings(ctx, r, settings)
}
