// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/connection"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/internal/refresher"
	"github.com/oceanprotocol/pdr-utils/internal/storage"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// ContractSource serves discovered contracts; *refresher.Refresher satisfies it
type ContractSource interface {
	Refresh(ctx context.Context) (*refresher.Snapshot, error)
	Snapshot() (*refresher.Snapshot, bool)
	Contract(address string) (*models.NormalizedContract, bool)
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	version        string
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	contracts      ContractSource
	rpc            connection.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	stop           chan struct{}
}

// NewHTTPServer creates a new HTTP server. storage and rpc may be nil.
func NewHTTPServer(
	cfg *config.ServerConfig,
	version string,
	store storage.Storage,
	contracts ContractSource,
	rpc connection.Manager,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {
	if contracts == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Contract source is required")
	}

	server := &HTTPServer{
		config:         cfg,
		version:        version,
		storage:        store,
		contracts:      contracts,
		rpc:            rpc,
		metricsManager: metricsManager,
		logger:         utils.NewSublogger("http"),
		stop:           make(chan struct{}),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Contract endpoints
	api.HandleFunc("/contracts", s.listContractsHandler).Methods("GET")
	api.HandleFunc("/contracts/{address}", s.getContractHandler).Methods("GET")
	api.HandleFunc("/contracts/{address}/epoch", s.updateEpochHandler).Methods("PUT")

	// Discovery endpoints
	api.HandleFunc("/discovery", s.discoveryHandler).Methods("POST")
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	// Update system and component metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.updateHealthMetrics()
		go s.systemMetricsUpdater()
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateHealthMetrics()
		case <-s.stop:
			return
		}
	}
}

func (s *HTTPServer) updateHealthMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	pm := s.metricsManager.GetPrometheusMetrics()
	if s.storage != nil {
		pm.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	}
	if s.rpc != nil {
		pm.UpdateComponentHealth("rpc", s.rpc.IsConnected())
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.version,
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns detailed health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{}
	healthy := true

	if s.storage != nil {
		err := s.storage.Ping()
		components["storage"] = err == nil
		healthy = healthy && err == nil
	}
	if s.rpc != nil {
		components["rpc"] = s.rpc.IsConnected()
	}

	discovery := map[string]interface{}{"ready": false}
	if snapshot, ok := s.contracts.Snapshot(); ok {
		discovery = map[string]interface{}{
			"ready":        true,
			"complete":     snapshot.Complete,
			"contracts":    len(snapshot.Contracts),
			"refreshed_at": snapshot.RefreshedAt,
		}
	}
	components["discovery"] = discovery

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now(),
		"version":    s.version,
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"metrics_enabled": s.config.EnableMetrics,
	}

	if s.storage != nil {
		storageStats, err := s.storage.GetStorageStats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}
	if s.rpc != nil {
		stats["rpc"] = s.rpc.Stats()
	}
	if snapshot, ok := s.contracts.Snapshot(); ok {
		stats["discovery"] = map[string]interface{}{
			"contracts":    len(snapshot.Contracts),
			"pages":        snapshot.Pages,
			"complete":     snapshot.Complete,
			"duration":     snapshot.Duration.String(),
			"refreshed_at": snapshot.RefreshedAt,
		}
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Contract Handlers

// listContractsHandler lists discovered contracts, preferring the persisted registry
func (s *HTTPServer) listContractsHandler(w http.ResponseWriter, r *http.Request) {
	var contracts []*models.NormalizedContract

	if s.storage != nil {
		stored, err := s.storage.GetContracts(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve contracts", err)
			return
		}
		contracts = stored
	} else if snapshot, ok := s.contracts.Snapshot(); ok {
		contracts = snapshot.Contracts
	} else {
		s.writeError(w, http.StatusServiceUnavailable, "Discovery has not completed yet", nil)
		return
	}

	if contracts == nil {
		contracts = []*models.NormalizedContract{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contracts": contracts,
		"total":     len(contracts),
	})
}

// getContractHandler gets a specific contract
func (s *HTTPServer) getContractHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !utils.IsValidAddress(address) {
		s.writeError(w, http.StatusBadRequest, "Invalid contract address", nil)
		return
	}

	if s.storage != nil {
		contract, err := s.storage.GetContract(r.Context(), address)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve contract", err)
			return
		}
		if contract != nil {
			s.writeJSON(w, http.StatusOK, contract)
			return
		}
	}

	if contract, ok := s.contracts.Contract(address); ok {
		s.writeJSON(w, http.StatusOK, contract)
		return
	}

	s.writeError(w, http.StatusNotFound, "Contract not found", nil)
}

// updateEpochHandler stores the last epoch a prediction was submitted for
func (s *HTTPServer) updateEpochHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage is not configured", nil)
		return
	}

	address := mux.Vars(r)["address"]
	if !utils.IsValidAddress(address) {
		s.writeError(w, http.StatusBadRequest, "Invalid contract address", nil)
		return
	}

	var body struct {
		LastSubmittedEpoch *int64 `json:"last_submitted_epoch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.LastSubmittedEpoch == nil || *body.LastSubmittedEpoch < 0 {
		s.writeError(w, http.StatusBadRequest, "last_submitted_epoch must be a non-negative integer", nil)
		return
	}

	err := s.storage.UpdateLastSubmittedEpoch(r.Context(), address, *body.LastSubmittedEpoch)
	if utils.HasCode(err, utils.ErrCodeNotFound) {
		s.writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to update contract", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":              address,
		"last_submitted_epoch": *body.LastSubmittedEpoch,
	})
}

// Discovery Handlers

// discoveryHandler runs discovery now and returns the resulting snapshot
func (s *HTTPServer) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.contracts.Refresh(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to persist discovered contracts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

// Helpers

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
