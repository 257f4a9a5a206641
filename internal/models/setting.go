package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Setting keys persisted by the bootstrap
const (
	SettingNetworkGenerationHashSeed = "networkGenerationHashSeed"
	SettingCurrencyMosaicID          = "currencyMosaicId"
	SettingMinVoterBalance           = "minVoterBalance"
)

// Setting is a single key/value row
type Setting struct {
	Key       string    `json:"key" bson:"key" db:"key"`
	Value     string    `json:"value" bson:"value" db:"value"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// NetworkSettings identifies the network being tracked
type NetworkSettings struct {
	NetworkGenerationHashSeed string `json:"networkGenerationHashSeed"`
	CurrencyMosaicID          string `json:"currencyMosaicId"`
	MinVoterBalance           uint64 `json:"minVoterBalance"`
}

// NetworkSettingsFromProperties normalizes the REST formatted values,
// e.g. "0x72C0'212E'67A0'8BCE" and "3'000'000'000'000".
func NetworkSettingsFromProperties(props *NetworkProperties) (*NetworkSettings, error) {
	if props == nil {
		return nil, fmt.Errorf("network properties are empty")
	}

	seed := strings.ToUpper(props.Network.GenerationHashSeed)
	if len(seed) != 64 {
		return nil, fmt.Errorf("invalid generation hash seed %q", props.Network.GenerationHashSeed)
	}

	mosaicID := strings.ToUpper(stripNumberFormatting(props.Chain.CurrencyMosaicID))
	mosaicID = strings.TrimPrefix(mosaicID, "0X")
	if _, err := strconv.ParseUint(mosaicID, 16, 64); err != nil {
		return nil, fmt.Errorf("invalid currency mosaic id %q: %w", props.Chain.CurrencyMosaicID, err)
	}

	minVoterBalance, err := strconv.ParseUint(stripNumberFormatting(props.Chain.MinVoterBalance), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid min voter balance %q: %w", props.Chain.MinVoterBalance, err)
	}

	return &NetworkSettings{
		NetworkGenerationHashSeed: seed,
		CurrencyMosaicID:          mosaicID,
		MinVoterBalance:           minVoterBalance,
	}, nil
}

func stripNumberFormatting(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "'", "")
}

// Values returns the settings rows to persist, keyed by setting key
func (s *NetworkSettings) Values() map[string]string {
	return map[string]string{
		SettingNetworkGenerationHashSeed: s.NetworkGenerationHashSeed,
		SettingCurrencyMosaicID:          s.CurrencyMosaicID,
		SettingMinVoterBalance:           strconv.FormatUint(s.MinVoterBalance, 10),
	}
}

// NetworkSettingsFromValues rebuilds the settings from stored rows. A
// *MissingSettingError names the first absent key.
func NetworkSettingsFromValues(values map[string]string) (*NetworkSettings, error) {
	for _, key := range []string{SettingNetworkGenerationHashSeed, SettingCurrencyMosaicID, SettingMinVoterBalance} {
		if values[key] == "" {
			return nil, &MissingSettingError{Key: key}
		}
	}

	minVoterBalance, err := strconv.ParseUint(values[SettingMinVoterBalance], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored %s %q: %w", SettingMinVoterBalance, values[SettingMinVoterBalance], err)
	}

	return &NetworkSettings{
		NetworkGenerationHashSeed: values[SettingNetworkGenerationHashSeed],
		CurrencyMosaicID:          values[SettingCurrencyMosaicID],
		MinVoterBalance:           minVoterBalance,
	}, nil
}

// MissingSettingError reports a setting the bootstrap has not written yet
type MissingSettingError struct {
	Key string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("setting %q is not configured", e.Key)
}
