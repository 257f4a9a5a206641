package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// SettingsReader loads the bootstrapped network settings
type SettingsReader interface {
	GetNetworkSettings(ctx context.Context) (*models.NetworkSettings, error)
}

type NetworkHandler struct {
	settings SettingsReader
	logger   *logrus.Logger
}

func NewNetworkHandler(settings SettingsReader, logger *logrus.Logger) *NetworkHandler {
	return &NetworkHandler{settings: settings, logger: logger}
}

// GetNetworkSettings returns the settings the probes validate against
func (h *NetworkHandler) GetNetworkSettings(c *gin.Context) {
	settings, err := h.settings.GetNetworkSettings(c.Request.Context())
	switch {
	case apperrors.IsConfiguration(err) || apperrors.IsNotFound(err):
		respondError(c, models.NewNetworkNotReadyError(err))
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to load network settings")
		respondError(c, models.NewDatabaseError("Failed to retrieve network settings", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"networkGenerationHashSeed": settings.NetworkGenerationHashSeed,
		"currencyMosaicId":          settings.CurrencyMosaicID,
		"minVoterBalance":           strconv.FormatUint(settings.MinVoterBalance, 10),
	})
}
