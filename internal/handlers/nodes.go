package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/scheduler"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/services"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

// NodeLister serves the registry read queries
type NodeLister interface {
	List(ctx context.Context, q services.NodeListQuery) ([]services.NodeView, error)
	Stats(ctx context.Context) (*services.NodeStats, error)
}

// JobRunner starts background jobs and reports on them
type JobRunner interface {
	Trigger(name string) error
	GetSchedulerStatus() map[string]interface{}
}

var aspectJobs = map[models.Aspect]string{
	models.AspectPeer:   scheduler.JobRefreshPeer,
	models.AspectAPI:    scheduler.JobRefreshAPI,
	models.AspectVoting: scheduler.JobRefreshVoting,
}

type NodeHandler struct {
	nodes  NodeLister
	jobs   JobRunner
	logger *logrus.Logger
}

func NewNodeHandler(nodes NodeLister, jobs JobRunner, logger *logrus.Logger) *NodeHandler {
	return &NodeHandler{
		nodes:  nodes,
		jobs:   jobs,
		logger: logger,
	}
}

// GetNodes lists the tracked nodes
func (h *NodeHandler) GetNodes(c *gin.Context) {
	query, appErr := parseNodeListQuery(c)
	if appErr != nil {
		respondError(c, appErr)
		return
	}

	nodes, err := h.nodes.List(c.Request.Context(), query)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list nodes")
		respondError(c, models.NewDatabaseError("Failed to retrieve nodes", err))
		return
	}

	c.JSON(http.StatusOK, nodes)
}

// GetNodeStats returns node counts per aspect
func (h *NodeHandler) GetNodeStats(c *gin.Context) {
	stats, err := h.nodes.Stats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count nodes")
		respondError(c, models.NewDatabaseError("Failed to retrieve node stats", err))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RefreshAspect starts the refresh job of one aspect
func (h *NodeHandler) RefreshAspect(c *gin.Context) {
	aspect := models.Aspect(c.Param("aspect"))
	job, ok := aspectJobs[aspect]
	if !ok {
		respondError(c, models.NewUnknownAspectError(string(aspect)))
		return
	}
	h.trigger(c, job)
}

// RunBootstrap starts the bootstrap job
func (h *NodeHandler) RunBootstrap(c *gin.Context) {
	h.trigger(c, scheduler.JobBootstrap)
}

// GetSchedulerStatus reports the scheduled jobs
func (h *NodeHandler) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetSchedulerStatus())
}

func (h *NodeHandler) trigger(c *gin.Context, job string) {
	err := h.jobs.Trigger(job)
	switch {
	case err == nil:
		h.logger.WithFields(logrus.Fields{
			"job":        job,
			"request_id": c.GetString("request_id"),
		}).Info("Job triggered")
		c.JSON(http.StatusAccepted, gin.H{
			"job":       job,
			"status":    "accepted",
			"timestamp": time.Now().UTC(),
		})
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		respondError(c, models.NewJobAlreadyRunningError(job))
	case apperrors.IsNotFound(err):
		respondError(c, models.NewNotFoundError("Unknown job"))
	default:
		h.logger.WithError(err).WithField("job", job).Error("Failed to trigger job")
		respondError(c, models.NewInternalError("Failed to start job", err))
	}
}

// parseNodeListQuery applies the listing defaults: HTTPS, peer and API
// availability are required unless explicitly disabled. Malformed numbers
// are ignored.
func parseNodeListQuery(c *gin.Context) (services.NodeListQuery, *models.AppError) {
	var q services.NodeListQuery
	yes := true

	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		q.Limit = limit
	}

	if ssl, ok := c.GetQuery("ssl"); !ok || ssl == "true" {
		q.Filter.HTTPSEnabled = &yes
	}
	if c.Query("peerAvailable") != "false" {
		q.Filter.PeerAvailable = &yes
	}
	if c.Query("apiAvailable") != "false" {
		q.Filter.APIAvailable = &yes
	}
	if c.Query("votingAvailable") == "true" {
		q.Filter.VotingEnabled = &yes
	}
	if count, err := strconv.Atoi(c.Query("fromTxSearchCount")); err == nil {
		q.Filter.MinTxSearchCountPerPage = &count
	}

	if raw := c.Query("minVersion"); raw != "" {
		v, err := version.NewVersion(raw)
		if err != nil {
			return q, models.NewValidationError("Invalid minVersion", err.Error())
		}
		q.MinVersion = v
	}

	return q, nil
}

func respondError(c *gin.Context, err *models.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, err.Response())
}
