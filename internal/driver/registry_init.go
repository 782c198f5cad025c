// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/driver/bulkimg"
	"fprint-service/internal/driver/r30x"
	"fprint-service/internal/driver/virtual"
	"fprint-service/pkg/driver"
)

// DefaultDrivers builds every compiled-in driver from its configuration
func DefaultDrivers(cfg config.DriversConfig, logger *zap.Logger) []driver.Driver {
	drivers := []driver.Driver{
		virtual.New(cfg.Virtual, logger),
		r30x.New(cfg.R30x, logger),
	}

	// Without a device table the bulk driver could never match anything
	if len(cfg.BulkImg.USBIDs) > 0 {
		drivers = append(drivers, bulkimg.New(cfg.BulkImg, logger))
	} else {
		logger.Debug("No USB ids configured, bulk image driver disabled")
	}

	return drivers
}

// NewDefaultRegistry registers the compiled-in drivers
func NewDefaultRegistry(cfg config.DriversConfig, logger *zap.Logger) (*Registry, error) {
	return NewRegistry(logger, DefaultDrivers(cfg, logger)...)
}
