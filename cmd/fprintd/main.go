// cmd/fprintd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	_ "fprint-service/docs"
	"fprint-service/internal/config"
	"fprint-service/internal/database"
	"fprint-service/internal/discovery"
	discoveryserial "fprint-service/internal/discovery/serial"
	discoveryusb "fprint-service/internal/discovery/usb"
	discoveryvirtual "fprint-service/internal/discovery/virtual"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/handler"
	"fprint-service/internal/routes"
	"fprint-service/internal/service"
	"fprint-service/internal/store"
	"fprint-service/internal/utils"
	"fprint-service/pkg/fprint"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	prints   store.Store

	fctx     *fprint.Context
	registry *internalDriver.Registry

	// stopEvents ends the event bus and the websocket forwarder
	stopEvents context.CancelFunc
	wsHandler  *handler.WebSocketHandler

	discoveryService *service.DiscoveryService
	deviceService    *service.DeviceService
	operationService *service.OperationService
}

// @title Fingerprint Service API
// @version 1.0.0
// @description Fingerprint sensor discovery, enrollment and verification

// @contact.name Fingerprint Service API Support

// @license.name LGPL-2.1
// @license.url https://www.gnu.org/licenses/old-licenses/lgpl-2.1.html

// @host localhost:8086
// @BasePath /api/v1
func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	migrateCmd := pflag.String("migrate", "", "run a schema migration command (up, down, version, force) and exit")
	forceVersion := pflag.Int("force-version", -1, "schema version recorded by --migrate=force")
	pflag.Parse()

	if *migrateCmd != "" {
		if err := runMigration(*configPath, *migrateCmd, *forceVersion); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	utils.NewServiceLogger(logger, "fprint-service").LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize print store: %w", err)
	}

	if err := app.initializeDriverRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver registry: %w", err)
	}

	if err := app.initializeContext(); err != nil {
		return nil, fmt.Errorf("failed to initialize fingerprint context: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeStore opens the print store, connecting to and migrating the
// database for the postgres backend
func (app *Application) initializeStore() error {
	switch app.config.Storage.Backend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := database.NewConnection(ctx, &app.config.Database, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		app.database = db

		if err := database.NewMigrator(db, app.logger).Up(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		app.prints = store.NewPostgresStore(db.DB, app.logger)

	default:
		fileStore, err := store.NewFileStore(app.config.Storage.File.Root, app.logger)
		if err != nil {
			return err
		}
		app.prints = fileStore
	}

	app.logger.Info("Print store initialized", zap.String("backend", app.config.Storage.Backend))
	return nil
}

func (app *Application) initializeDriverRegistry() error {
	registry, err := internalDriver.NewDefaultRegistry(app.config.Drivers, app.logger)
	if err != nil {
		return err
	}
	app.registry = registry

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(registry.ListDrivers())),
	)
	return nil
}

// scanners builds the discovery scanners enabled in the configuration
func (app *Application) scanners() []discovery.DeviceScanner {
	cfg := app.config.Discovery
	var scanners []discovery.DeviceScanner

	if cfg.USB.Enabled {
		scanners = append(scanners, discoveryusb.NewScanner(app.logger, app.registry, discoveryusb.Config{
			ScanTimeout:   cfg.USB.Timeout,
			IOTimeout:     cfg.USB.IOTimeout,
			MaxConcurrent: cfg.USB.Workers,
			EnableDebug:   app.config.IsDebugEnabled(),
		}))
	}
	if cfg.Serial.Enabled {
		scanners = append(scanners, discoveryserial.NewScanner(app.logger, app.registry, discoveryserial.Config{
			Ports:    cfg.Serial.Ports,
			Bridges:  cfg.Serial.Bridges,
			BaudRate: cfg.Serial.BaudRate,
			Timeout:  cfg.Serial.Timeout,
		}))
	}
	if cfg.Virtual.Enabled {
		scanners = append(scanners, discoveryvirtual.NewScanner(app.logger, app.registry, cfg.Virtual.Dirs))
	}
	return scanners
}

func (app *Application) initializeContext() error {
	fctx, err := fprint.Init(
		fprint.WithLogger(app.logger),
		fprint.WithRegistry(app.registry),
		fprint.WithScanners(app.scanners()...),
		fprint.WithStore(app.prints),
	)
	if err != nil {
		return err
	}
	app.fctx = fctx
	return nil
}

func (app *Application) initializeServices() {
	ctx, cancel := context.WithCancel(context.Background())
	bus := handler.NewEventBus(app.logger)
	app.stopEvents = cancel
	go bus.Start(ctx)

	app.discoveryService = service.NewDiscoveryService(app.fctx, &app.config.Discovery, bus, app.logger)
	app.deviceService = service.NewDeviceService(app.fctx, app.discoveryService, bus, app.logger)
	app.operationService = service.NewOperationService(app.fctx, app.deviceService, &app.config.Enroll, bus, app.logger)

	app.wsHandler = handler.NewWebSocketHandler(bus, app.deviceService, app.config.Security.AllowedOrigins, app.logger)
	go app.wsHandler.Run(ctx)

	app.logger.Info("Services initialized successfully")
}

func (app *Application) initializeServer() {
	router := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.prints,
		app.discoveryService,
		app.deviceService,
		app.operationService,
		app.wsHandler,
	).SetupRouter()

	// enrollments block on the sensor, so the write timeout must outlast them
	writeTimeout := app.config.Server.WriteTimeout
	if app.config.Enroll.Timeout > 0 && writeTimeout > 0 && writeTimeout < app.config.Enroll.Timeout+5*time.Second {
		writeTimeout = app.config.Enroll.Timeout + 5*time.Second
	}

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.server.Addr))
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down
func (app *Application) Start() error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
		return nil
	case err := <-errCh:
		app.shutdown("server error")
		return err
	}
}

func (app *Application) shutdown(reason string) {
	utils.NewServiceLogger(app.logger, "fprint-service").LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// open devices first so blocked enrollments return before the server waits on them
	if err := app.deviceService.CloseAll(); err != nil {
		app.logger.Error("Failed to close devices", zap.Error(err))
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.stopEvents()

	if err := app.fctx.Close(); err != nil {
		app.logger.Error("Fingerprint context close error", zap.Error(err))
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
