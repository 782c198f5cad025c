// Package fprint is the entry point for fingerprint hardware: it discovers
// sensors, opens them, enrolls fingers into portable prints and verifies
// live scans against stored prints.
//
// A Context is created with Init and owns the driver registry, the scanners
// and the print store. Every Device opened from it must be closed before the
// Context is.
package fprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/discovery"
	discoveryserial "fprint-service/internal/discovery/serial"
	discoveryusb "fprint-service/internal/discovery/usb"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/protocol"
	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// Errors returned by this package. They are the driver package sentinels so
// errors.Is works across both.
var (
	ErrTransport            = driver.ErrTransport
	ErrDeviceClosed         = driver.ErrDeviceClosed
	ErrNoFingerDetected     = driver.ErrNoFingerDetected
	ErrIncompatibleTemplate = driver.ErrIncompatibleTemplate
	ErrCorruptData          = driver.ErrCorruptData
	ErrProtocol             = driver.ErrProtocol
	ErrDeviceBusy           = driver.ErrDeviceBusy
	ErrImagingUnsupported   = driver.ErrImagingUnsupported
	ErrVerifyUnsupported    = driver.ErrVerifyUnsupported
	ErrInvalidFinger        = driver.ErrInvalidFinger
	ErrPrintNotFound        = driver.ErrPrintNotFound
	ErrUnknownDriver        = driver.ErrUnknownDriver
)

// Transport is an openable byte pipe to one sensor
type Transport interface {
	driver.Transport
	Open(ctx context.Context) error
	Close() error
}

// TransportFactory builds the transport for a discovered device from its
// connection parameters
type TransportFactory func(kind devicetypes.ConnectionType, params map[string]interface{}, logger *zap.Logger) (Transport, error)

func protocolTransport(kind devicetypes.ConnectionType, params map[string]interface{}, logger *zap.Logger) (Transport, error) {
	return protocol.CreateProtocol(kind, params, logger)
}

// Option configures Init
type Option func(*Context)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// WithRegistry replaces the compiled-in drivers
func WithRegistry(registry *internalDriver.Registry) Option {
	return func(c *Context) { c.registry = registry }
}

// WithScanners replaces the default USB and serial scanners. Calling it
// without scanners disables device discovery.
func WithScanners(scanners ...discovery.DeviceScanner) Option {
	return func(c *Context) { c.scanners = append([]discovery.DeviceScanner{}, scanners...) }
}

// WithStore sets where prints are saved. The default is a file store under
// ~/.fprint/prints.
func WithStore(s store.Store) Option {
	return func(c *Context) { c.store = s }
}

// WithTransportFactory replaces the transport constructor
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Context) { c.newTransport = factory }
}

// Context is the library handle
type Context struct {
	logger       *zap.Logger
	registry     *internalDriver.Registry
	scanners     []discovery.DeviceScanner
	manager      *discovery.ScannerManager
	store        store.Store
	newTransport TransportFactory

	mu      sync.Mutex
	handles map[string]*Device
	closed  bool
}

// Init creates a Context. Drivers are registered here and never change
// afterwards.
func Init(opts ...Option) (*Context, error) {
	c := &Context{
		logger:       zap.NewNop(),
		newTransport: protocolTransport,
		handles:      make(map[string]*Device),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.registry == nil {
		registry, err := internalDriver.NewDefaultRegistry(config.DriversConfig{}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build driver registry: %w", err)
		}
		c.registry = registry
	}

	if c.scanners == nil {
		c.scanners = []discovery.DeviceScanner{
			discoveryusb.NewScanner(c.logger, c.registry, discoveryusb.Config{}),
			discoveryserial.NewScanner(c.logger, c.registry, discoveryserial.Config{}),
		}
	}
	c.manager = discovery.NewScannerManager(c.logger, c.scanners...)

	if c.store == nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate print directory: %w", err)
		}
		fileStore, err := store.NewFileStore(filepath.Join(home, ".fprint", "prints"), c.logger)
		if err != nil {
			return nil, err
		}
		c.store = fileStore
	}

	c.logger.Debug("Context initialized", zap.Int("drivers", len(c.registry.ListDrivers())))
	return c, nil
}

// Registry returns the driver registry
func (c *Context) Registry() *internalDriver.Registry {
	return c.registry
}

// Close closes every device still open and invalidates the Context
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*Device, 0, len(c.handles))
	for _, d := range c.handles {
		open = append(open, d)
	}
	c.mu.Unlock()

	var errs []error
	for _, d := range open {
		c.logger.Warn("Closing device left open", zap.String("key", d.key))
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

// acquire reserves key in the handle table
func (c *Context) acquire(key string, d *Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: context closed", ErrDeviceClosed)
	}
	if _, busy := c.handles[key]; busy {
		return fmt.Errorf("%w: %s is already open", ErrDeviceBusy, key)
	}
	c.handles[key] = d
	return nil
}

func (c *Context) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, key)
}
