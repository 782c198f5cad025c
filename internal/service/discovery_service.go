// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/model"
	"fprint-service/internal/utils"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fprint"
)

// DiscoveryService runs device discovery and remembers the last result, so
// that devices can be opened by their index in it
type DiscoveryService struct {
	fctx      *fprint.Context
	config    *config.DiscoveryConfig
	publisher EventPublisher
	logger    *utils.ServiceLogger

	mutex   sync.RWMutex
	devices fprint.DiscoveredDevices
}

// NewDiscoveryService creates a new discovery service instance
func NewDiscoveryService(fctx *fprint.Context, cfg *config.DiscoveryConfig, publisher EventPublisher, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		fctx:      fctx,
		config:    cfg,
		publisher: publisherOrNop(publisher),
		logger:    utils.NewServiceLogger(logger, "discovery-service"),
	}
}

// Drivers lists the registered drivers
func (s *DiscoveryService) Drivers() []model.DriverRecord {
	return lo.Map(s.fctx.Registry().ListDrivers(), func(d driver.Driver, _ int) model.DriverRecord {
		return driverRecord(d)
	})
}

// Scanners lists the scanner types available on this host
func (s *DiscoveryService) Scanners() []string {
	return s.fctx.Scanners()
}

// Discover scans for sensors, on every scanner when scannerType is empty.
// When some scanners fail, the devices found by the others replace the
// previous result and the error is returned with them.
func (s *DiscoveryService) Discover(ctx context.Context, scannerType string) (fprint.DiscoveredDevices, error) {
	if scannerType != "" && !slices.Contains(s.Scanners(), scannerType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScanner, scannerType)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	var (
		devices fprint.DiscoveredDevices
		err     error
	)
	if scannerType == "" {
		devices, err = s.fctx.DiscoverDevices(ctx)
	} else {
		devices, err = s.fctx.DiscoverDevicesOn(ctx, scannerType)
	}
	if err != nil {
		s.logger.Warn("Discovery finished with errors", zap.Int("devices", len(devices)), zap.Error(err))
	} else {
		s.logger.Info("Discovery finished", zap.Int("devices", len(devices)))
	}

	s.mutex.Lock()
	s.devices = devices
	s.mutex.Unlock()

	data := model.JSONObject{"devices": len(devices)}
	if scannerType != "" {
		data["scanner"] = scannerType
	}
	severity := model.SeverityInfo
	if err != nil {
		data["error"] = err.Error()
		severity = model.SeverityWarning
	}
	s.publisher.Publish(model.NewEvent(model.EventDiscoveryCompleted, "", severity, data))

	return devices, err
}

// Device returns the device at index of the last discovery run
func (s *DiscoveryService) Device(index int) (*fprint.DiscoveredDevice, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if index < 0 || index >= len(s.devices) {
		return nil, fmt.Errorf("%w: no device at index %d, run discovery first", ErrDeviceNotFound, index)
	}
	return s.devices[index], nil
}
