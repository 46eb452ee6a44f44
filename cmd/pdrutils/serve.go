package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/connection"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/notification"
	"github.com/oceanprotocol/pdr-utils/internal/refresher"
	"github.com/oceanprotocol/pdr-utils/internal/server"
	"github.com/oceanprotocol/pdr-utils/internal/storage"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Application represents the long-running discovery service
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	metrics    *metrics.Manager
	connection *connection.ConnectionManager
	storage    storage.Storage
	refresher  *refresher.Refresher
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		logger:  utils.GetLogger(),
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The RPC node is optional for discovery; it only feeds health and stats
	if app.config.RPC.NodeURL != "" {
		app.connection = connection.NewConnectionManager(&app.config.RPC).WithMetrics(app.metrics)
	}

	discoverer := newDiscoverer(app.config, app.metrics)
	app.refresher = refresher.New(discoverer, app.storage, &app.config.Refresher).WithMetrics(app.metrics)
	if app.config.Notify.WebhookURL != "" {
		sender, err := notification.NewWebhookSender(&app.config.Notify)
		if err != nil {
			return fmt.Errorf("failed to create webhook sender: %w", err)
		}
		app.refresher.WithNotifier(sender)
	}

	var rpc connection.Manager
	if app.connection != nil {
		rpc = app.connection
	}
	srv, err := server.NewHTTPServer(&app.config.Server, AppVersion, app.storage, app.refresher, rpc, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	app.server = srv

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics)
	return nil
}

// Start starts the refresher and the HTTP server
func (app *Application) Start() error {
	if app.connection != nil {
		if err := app.connection.HealthCheck(app.ctx); err != nil {
			app.logger.WithError(err).Warn("RPC node is not reachable, continuing without it")
		}
	}

	if app.config.Refresher.Enabled {
		if err := app.refresher.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start refresher: %w", err)
		}
	}

	if err := app.server.Start(); err != nil {
		return err
	}

	app.logger.WithField("version", AppVersion).Info("Application started")
	return nil
}

// Stop stops all components
func (app *Application) Stop() error {
	app.cancel()

	var firstErr error
	if err := app.server.Stop(); err != nil {
		firstErr = err
	}
	if app.config.Refresher.Enabled {
		app.refresher.Stop()
	}
	if app.connection != nil {
		app.connection.Close()
	}
	if err := app.storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	app.logger.Info("Application stopped")
	return firstErr
}

// serveCmd runs the HTTP API with periodic discovery
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the contract registry API with scheduled discovery",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		app.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}
