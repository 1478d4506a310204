// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cert-registry/internal/ipfs"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/service"
	"github.com/cert-registry/internal/types"
)

// Service interfaces for dependency injection and testing

// AuthorityServiceInterface defines the interface for registry administration
type AuthorityServiceInterface interface {
	Initialize(ctx context.Context, admin, treasury string) (*models.Authority, error)
	GetAuthority(ctx context.Context) (*models.Authority, error)
	GetStatistics(ctx context.Context) (*models.RegistryStats, error)
	AddCertifier(ctx context.Context, admin, certifier, displayName, physicalAddress string) (*models.CertifierProfile, error)
	RemoveCertifier(ctx context.Context, admin, certifier string) error
	ListCertifiers(ctx context.Context) ([]*models.CertifierProfile, error)
	GetCertifier(ctx context.Context, certifier string) (*service.CertifierStats, error)
}

// CertificateServiceInterface defines the interface for certificate operations
type CertificateServiceInterface interface {
	Issue(ctx context.Context, input *service.IssueCertificateInput) (*models.Certificate, error)
	Transfer(ctx context.Context, input *service.TransferCertificateInput) (*models.Certificate, error)
	Verify(ctx context.Context, serialNumber string) (*service.VerifyCertificateOutput, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Certificate, error)
	ListByCertifier(ctx context.Context, certifier string, limit, offset int) ([]*models.Certificate, error)
	History(ctx context.Context, serialNumber string, limit int) ([]*models.CertificateEvent, error)
}

// RequestServiceInterface defines the interface for the certification workflow
type RequestServiceInterface interface {
	Submit(ctx context.Context, input *service.SubmitRequestInput) (*models.CertificationRequest, error)
	Approve(ctx context.Context, certifier, serialNumber string) (*models.Certificate, error)
	Reject(ctx context.Context, certifier, serialNumber, reason string) (*models.CertificationRequest, error)
	Get(ctx context.Context, serialNumber string) (*models.CertificationRequest, error)
	ListByCertifier(ctx context.Context, certifier string, status types.RequestStatus, limit, offset int) ([]*models.CertificationRequest, error)
	ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*models.CertificationRequest, error)
}

// LedgerServiceInterface defines the interface for balance queries and funding
type LedgerServiceInterface interface {
	FaucetEnabled() bool
	Balance(ctx context.Context, identity string) (*models.LedgerAccount, error)
	Entries(ctx context.Context, identity string, limit, offset int) ([]*models.LedgerEntry, error)
	Fund(ctx context.Context, identity string, amount uint64) (*models.LedgerAccount, error)
}

// MetadataServiceInterface defines the interface for IPFS metadata operations
type MetadataServiceInterface interface {
	UploadImage(ctx context.Context, data []byte, filename string) (*ipfs.UploadResult, error)
	CreateMetadata(ctx context.Context, meta *ipfs.Metadata) (*ipfs.UploadResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router             *mux.Router
	httpServer         *http.Server
	authorityService   AuthorityServiceInterface
	certificateService CertificateServiceInterface
	requestService     RequestServiceInterface
	ledgerService      LedgerServiceInterface
	metadataService    MetadataServiceInterface
	metricsHandler     http.Handler
	config             *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int
	BasicTierRPS    int
	PremiumTierRPS  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	authorityService AuthorityServiceInterface,
	certificateService CertificateServiceInterface,
	requestService RequestServiceInterface,
	ledgerService LedgerServiceInterface,
	metadataService MetadataServiceInterface,
	metricsHandler http.Handler,
) *Server {
	s := &Server{
		router:             mux.NewRouter(),
		authorityService:   authorityService,
		certificateService: certificateService,
		requestService:     requestService,
		ledgerService:      ledgerService,
		metadataService:    metadataService,
		metricsHandler:     metricsHandler,
		config:             config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.BasicTierRPS, s.config.PremiumTierRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.metricsHandler != nil {
		s.router.Handle("/metrics", s.metricsHandler).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Authority endpoints
	api.HandleFunc("/authority", s.handleInitialize).Methods("POST")
	api.HandleFunc("/authority", s.handleGetAuthority).Methods("GET")

	// Certifier endpoints
	api.HandleFunc("/certifiers", s.handleAddCertifier).Methods("POST")
	api.HandleFunc("/certifiers", s.handleListCertifiers).Methods("GET")
	api.HandleFunc("/certifiers/{identity}", s.handleGetCertifier).Methods("GET")
	api.HandleFunc("/certifiers/{identity}", s.handleRemoveCertifier).Methods("DELETE")

	// Certificate endpoints
	api.HandleFunc("/certificates", s.handleIssueCertificate).Methods("POST")
	api.HandleFunc("/certificates", s.handleListCertificates).Methods("GET")
	api.HandleFunc("/certificates/{serial}", s.handleVerifyCertificate).Methods("GET")
	api.HandleFunc("/certificates/{serial}/history", s.handleCertificateHistory).Methods("GET")
	api.HandleFunc("/certificates/{serial}/transfer", s.handleTransferCertificate).Methods("POST")

	// Certification request endpoints
	api.HandleFunc("/requests", s.handleSubmitRequest).Methods("POST")
	api.HandleFunc("/requests", s.handleListRequests).Methods("GET")
	api.HandleFunc("/requests/{serial}", s.handleGetRequest).Methods("GET")
	api.HandleFunc("/requests/{serial}/approve", s.handleApproveRequest).Methods("POST")
	api.HandleFunc("/requests/{serial}/reject", s.handleRejectRequest).Methods("POST")

	// Ledger endpoints
	api.HandleFunc("/ledger/{identity}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/ledger/{identity}/entries", s.handleGetLedgerEntries).Methods("GET")
	api.HandleFunc("/ledger/{identity}/fund", s.handleFund).Methods("POST")

	// Metadata endpoints
	api.HandleFunc("/metadata", s.handleCreateMetadata).Methods("POST")
	api.HandleFunc("/upload/image", s.handleUploadImage).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cert-registry",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
