// Package main provides the API server entry point for the certificate registry.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cert-registry/internal/api"
	"github.com/cert-registry/internal/config"
	"github.com/cert-registry/internal/ipfs"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/metrics"
	"github.com/cert-registry/internal/service"
	"github.com/cert-registry/internal/storage"
)

func main() {
	fmt.Println("Certificate Registry API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to ClickHouse
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Register Prometheus collectors
	metricsHandler, err := metrics.Register(prometheus.DefaultRegisterer)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register metrics")
	}

	// Initialize repositories
	authorityRepo := storage.NewAuthorityRepository(postgres)
	certifierRepo := storage.NewCertifierRepository(postgres)
	certRepo := storage.NewCertificateRepository(postgres)
	activityRepo := storage.NewActivityRepository(postgres)
	requestRepo := storage.NewRequestRepository(postgres)
	ledgerRepo := storage.NewLedgerRepository(postgres)
	auditRepo := storage.NewAuditRepository(clickhouse)

	verifyCache := storage.NewVerifyCache(redis, cfg.Cache.VerifyTTL)

	// Initialize the IPFS client (simulated when no service URL is set)
	ipfsClient := ipfs.NewClient(&cfg.IPFS)
	if ipfsClient.Simulated() {
		logger.Warn("IPFS service URL not configured - using simulated pinning")
	}

	// Initialize services
	logger.Info("Initializing services...")

	authorityService := service.NewAuthorityService(postgres, authorityRepo, certifierRepo, certRepo)
	certificateService := service.NewCertificateService(
		postgres,
		authorityRepo,
		certifierRepo,
		certRepo,
		activityRepo,
		ledgerRepo,
		auditRepo,
		verifyCache,
		cfg.Registry,
	)
	requestService := service.NewRequestService(
		postgres,
		authorityRepo,
		certifierRepo,
		certRepo,
		activityRepo,
		requestRepo,
		ledgerRepo,
		auditRepo,
		cfg.Registry,
	)
	ledgerService := service.NewLedgerService(postgres, ledgerRepo, cfg.Registry.DevFaucet)

	if ledgerService.FaucetEnabled() {
		logger.Warn("Dev faucet is enabled - do not run this configuration in production")
	}

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		BasicTierRPS:    cfg.RateLimit.BasicTier,
		PremiumTierRPS:  cfg.RateLimit.PremiumTier,
	}

	server := api.NewServer(
		serverConfig,
		authorityService,
		certificateService,
		requestService,
		ledgerService,
		ipfsClient,
		metricsHandler,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
