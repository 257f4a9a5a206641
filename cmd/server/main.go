package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/config"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/database"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/handlers"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/middleware"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/repositories"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/scheduler"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/services"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/symbol"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/logger"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

const appVersion = "1.0.0"

// store bundles the registry repositories with their connection
type store struct {
	nodes    repositories.NodeRepository
	settings repositories.SettingsRepository
	close    func() error
}

func openStore(cfg *config.Config) (*store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		if err := database.MigrateUp(&cfg.Database); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return &store{
			nodes:    repositories.NewPostgresNodeRepository(db),
			settings: repositories.NewPostgresSettingsRepository(db),
			close:    db.Close,
		}, nil
	default:
		mdb, err := database.NewMongoDB(&cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return &store{
			nodes:    repositories.NewMongoNodeRepository(mdb.DB, database.CollectionNodes),
			settings: repositories.NewMongoSettingsRepository(mdb.DB, database.CollectionSettings),
			close:    mdb.Close,
		}, nil
	}
}

// clientCertificate loads the configured peer certificate or generates a
// throwaway one
func clientCertificate(cfg *config.SymbolConfig, appLogger *logrus.Logger) (tls.Certificate, error) {
	if cfg.SocketCertPath != "" {
		return symbol.LoadClientCertificate(cfg.SocketCertPath, cfg.SocketKeyPath)
	}
	appLogger.Info("No socket certificate configured, generating a self-signed one")
	return symbol.GenerateClientCertificate(time.Now())
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	appMetrics := metrics.NewMetrics()

	// Connect to the registry store
	st, err := openStore(cfg)
	if err != nil {
		appLogger.WithError(err).WithField("driver", cfg.Store.Driver).Fatal("Failed to open store")
	}
	defer st.close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisClient(&cfg.Redis)
		if err != nil {
			appLogger.WithError(err).Warn("Redis unavailable, caching HTTPS flags in memory")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	cert, err := clientCertificate(&cfg.Symbol, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to prepare socket client certificate")
	}

	// Initialize transports
	socketClient := symbol.NewSocketClient(cert, cfg.Monitor.ConnectionTimeout)
	restClient := symbol.NewRestClient(cfg.Monitor.RestTimeout)
	httpsCache := services.NewHTTPSCapabilityCache(restClient, redisClient, cfg.Monitor.HTTPSCacheTTL, appMetrics, appLogger)
	resolver := services.NewTransportResolver(socketClient, restClient, httpsCache, appMetrics, appLogger)
	crawler := services.NewCrawler(resolver, cfg.Monitor.RequestChunk, cfg.Symbol.PeerPort, appMetrics, appLogger)

	var locator services.HostLocator
	if cfg.GeoIP.Enabled {
		geo := services.NewGeoLocationService(cfg.GeoIP.DBPath, appLogger)
		defer geo.Close()
		locator = geo
	}

	// Initialize services
	updater := services.NewRegistryUpdater(st.nodes, locator, appMetrics, appLogger)
	peerMonitor := services.NewPeerMonitor(st.nodes, st.settings, crawler, updater, cfg.Monitor.RequestCount, appMetrics, appLogger)
	apiMonitor := services.NewAPIMonitor(st.nodes, crawler, updater, symbol.NewWebSocketProber(cfg.Monitor.ConnectionTimeout), cfg.Monitor.RequestCount, appMetrics, appLogger)
	votingMonitor := services.NewVotingMonitor(st.nodes, st.settings, crawler, updater, cfg.Monitor.RequestCount, appMetrics, appLogger)
	bootstrapService := services.NewBootstrapService(st.nodes, st.settings, crawler, updater, peerMonitor, cfg.Symbol.InitHosts, appLogger)
	nodeList := services.NewNodeListService(st.nodes, appLogger)

	// Initialize scheduler
	cronScheduler := scheduler.NewCronScheduler([]scheduler.Job{
		{Name: scheduler.JobRefreshPeer, Schedule: cfg.Monitor.PeerSchedule, Run: peerMonitor.Refresh},
		{Name: scheduler.JobRefreshAPI, Schedule: cfg.Monitor.APISchedule, Run: apiMonitor.Refresh},
		{Name: scheduler.JobRefreshVoting, Schedule: cfg.Monitor.VotingSchedule, Run: votingMonitor.Refresh},
		{Name: scheduler.JobBootstrap, Schedule: cfg.Monitor.BootstrapSchedule, Run: bootstrapService.Run},
	}, cfg.Monitor.JobTimeout, appMetrics, appLogger)
	if err := cronScheduler.Start(); err != nil {
		appLogger.WithError(err).Fatal("Failed to start scheduler")
	}
	defer cronScheduler.Stop()

	if err := cronScheduler.Trigger(scheduler.JobBootstrap); err != nil {
		appLogger.WithError(err).Warn("Initial bootstrap not started")
	}

	// Initialize HTTP handlers
	healthHandler := handlers.NewHealthHandler(st.nodes, appLogger, appVersion)
	nodeHandler := handlers.NewNodeHandler(nodeList, cronScheduler, appLogger)
	networkHandler := handlers.NewNetworkHandler(st.settings, appLogger)

	// Setup Gin router
	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow, appMetrics, appLogger)
	go rateLimiter.Cleanup(rootCtx)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.StructuredLogger(appLogger, appMetrics))
	router.Use(middleware.Security())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API routes
	api := router.Group("/api/v1")
	api.Use(rateLimiter.Middleware())
	{
		api.GET("/nodes", nodeHandler.GetNodes)
		api.GET("/nodes/stats", nodeHandler.GetNodeStats)
		api.POST("/nodes/refresh/:aspect", nodeHandler.RefreshAspect)
		api.POST("/bootstrap", nodeHandler.RunBootstrap)
		api.GET("/scheduler/status", nodeHandler.GetSchedulerStatus)
		api.GET("/network/settings", networkHandler.GetNetworkSettings)
	}

	// Start server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	// Graceful shutdown
	go func() {
		appLogger.WithField("addr", serverAddr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
