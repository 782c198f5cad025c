// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// DeviceScanner finds sensors reachable over one kind of connection
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice is a sensor found by a scanner and resolved to a driver.
// ConnectionInfo is accepted as is by protocol.CreateProtocol.
type DiscoveredDevice struct {
	ConnectionType devicetypes.ConnectionType `json:"connection_type"`
	ConnectionInfo map[string]interface{}     `json:"connection_info"`

	// Key identifies the physical attachment point. Two discoveries of the
	// same sensor yield the same key.
	Key string `json:"key"`

	Driver       driver.Driver       `json:"-"`
	DevType      devicetypes.DevType `json:"devtype"`
	Description  string              `json:"description,omitempty"`
	SerialNumber string              `json:"serial_number,omitempty"`
	Location     string              `json:"location,omitempty"`
}

// DriverName returns the short name of the resolved driver
func (d *DiscoveredDevice) DriverName() string {
	if d.Driver == nil {
		return ""
	}
	return d.Driver.Info().Name
}

// ScannerManager runs every registered scanner
type ScannerManager struct {
	scanners map[string]DeviceScanner
	order    []string
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger, scanners ...DeviceScanner) *ScannerManager {
	sm := &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
	for _, s := range scanners {
		sm.RegisterScanner(s)
	}
	return sm
}

// RegisterScanner registers a device scanner. A scanner of the same type
// replaces the previous one.
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	if _, exists := sm.scanners[scannerType]; !exists {
		sm.order = append(sm.order, scannerType)
	}
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs the available scanners in registration order. A failing
// scanner does not stop the others: their devices are returned together with
// the joined failures, each wrapping driver.ErrTransport.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	allDevices := make([]*DiscoveredDevice, 0)
	seen := make(map[string]bool)
	var errs []error

	for _, scannerType := range sm.order {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		devices, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s scan: %w: %w", scannerType, driver.ErrTransport, err))
		}

		for _, device := range devices {
			if seen[device.Key] {
				sm.logger.Debug("Removing duplicate device", zap.String("key", device.Key))
				continue
			}
			seen[device.Key] = true
			allDevices = append(allDevices, device)
		}

		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	return allDevices, errors.Join(errs...)
}

// ScanByType runs a single scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	devices, err := scanner.Scan(ctx)
	if err != nil {
		return devices, fmt.Errorf("%s scan: %w: %w", scannerType, driver.ErrTransport, err)
	}
	return devices, nil
}

// GetAvailableScanners returns the available scanner types in registration order
func (sm *ScannerManager) GetAvailableScanners() []string {
	return slices.DeleteFunc(slices.Clone(sm.order), func(scannerType string) bool {
		return !sm.scanners[scannerType].IsAvailable()
	})
}
