// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
)

// Service interfaces for dependency injection and testing

// ResolverInterface defines the interface for entity resolution.
type ResolverInterface interface {
	ResolveInvoice(ctx context.Context, id int64) *service.ResolvedInvoice
	ResolvePool(ctx context.Context, id int64) *service.ResolvedPool
}

// ValidatorInterface defines the interface for consistency validation.
type ValidatorInterface interface {
	Validate(ctx context.Context) (*models.ValidationResult, error)
	ValidateIDs(ctx context.Context, ids []int64) (*models.ValidationResult, error)
}

// HealerInterface defines the interface for cache repair.
type HealerInterface interface {
	Heal(ctx context.Context, issues []models.ConsistencyIssue) *models.HealReport
}

// HealthInterface defines the interface for store health probing.
type HealthInterface interface {
	Probe(ctx context.Context) *models.SystemHealth
}

// PaymentStoreInterface defines the interface for payment persistence.
type PaymentStoreInterface interface {
	Upsert(ctx context.Context, row *models.PaymentRow) error
}

// HistoryInterface defines the interface for validation run history.
type HistoryInterface interface {
	ListValidationRuns(ctx context.Context, limit int) ([]storage.ValidationRunSummary, error)
}

// FxRateSource defines the interface for currency conversion rate lookup.
type FxRateSource interface {
	Get(ctx context.Context, base, quote string) (float64, error)
}

// InvoiceCacheInterface defines the cache operations exposed directly over
// HTTP: status-filtered listing and cache-only metadata writes.
type InvoiceCacheInterface interface {
	QueryByStatus(ctx context.Context, status types.InvoiceStatus, limit int) ([]*models.InvoiceRow, error)
	SetDescription(ctx context.Context, tokenID int64, description string) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	resolver   ResolverInterface
	validator  ValidatorInterface
	healer     HealerInterface
	health     HealthInterface
	payments   PaymentStoreInterface
	history    HistoryInterface
	fxRates    FxRateSource
	invoices   InvoiceCacheInterface
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance. history may be nil when no
// audit store is configured; the history endpoint then reports unavailable.
// fxRates may be nil; payments are then stored without a conversion rate.
func NewServer(
	config *ServerConfig,
	resolver ResolverInterface,
	validator ValidatorInterface,
	healer HealerInterface,
	health HealthInterface,
	payments PaymentStoreInterface,
	history HistoryInterface,
	fxRates FxRateSource,
	invoices InvoiceCacheInterface,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		resolver:  resolver,
		validator: validator,
		healer:    healer,
		health:    health,
		payments:  payments,
		history:   history,
		fxRates:   fxRates,
		invoices:  invoices,
		config:    config,
		logger:    logging.GetGlobalLogger(),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

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
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Read endpoints
	api.HandleFunc("/invoices", s.handleListInvoices).Methods("GET")
	api.HandleFunc("/invoices/{id}", s.handleGetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/description", s.handleSetInvoiceDescription).Methods("PUT")
	api.HandleFunc("/pools/{id}", s.handleGetPool).Methods("GET")

	// Consistency endpoints
	api.HandleFunc("/consistency/check", s.handleConsistencyCheck).Methods("POST")
	api.HandleFunc("/consistency/heal", s.handleConsistencyHeal).Methods("POST")
	api.HandleFunc("/consistency/history", s.handleConsistencyHistory).Methods("GET")

	// Health endpoint
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Write endpoints, gated on consensus health
	api.HandleFunc("/payments", s.handleSubmitPayment).Methods("POST")
}

// Router exposes the configured router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
