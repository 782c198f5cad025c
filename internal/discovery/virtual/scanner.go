// internal/discovery/virtual/scanner.go
package virtual

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/protocol"
	"fprint-service/pkg/devicetypes"
)

// Scanner reports one virtual sensor per configured frame directory
type Scanner struct {
	logger   *zap.Logger
	registry *internalDriver.Registry
	dirs     []string
}

// NewScanner creates a scanner for dirs
func NewScanner(logger *zap.Logger, registry *internalDriver.Registry, dirs []string) *Scanner {
	return &Scanner{
		logger:   logger.With(zap.String("scanner", "virtual")),
		registry: registry,
		dirs:     dirs,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "virtual"
}

// IsAvailable reports whether there is a directory to serve and a driver to serve it
func (s *Scanner) IsAvailable() bool {
	return len(s.dirs) > 0 && len(s.registry.ByConnection(devicetypes.ConnectionTypeVirtual)) > 0
}

// Scan checks every directory. Unreadable directories are reported as errors
// and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	drivers := s.registry.ByConnection(devicetypes.ConnectionTypeVirtual)
	discovered := make([]*discovery.DiscoveredDevice, 0, len(s.dirs))
	var errs []error

	for _, dir := range s.dirs {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		files, err := protocol.ListImageFiles(abs)
		if err != nil {
			errs = append(errs, fmt.Errorf("frame directory %s: %w", dir, err))
			continue
		}
		if len(files) == 0 {
			s.logger.Warn("Frame directory has no images", zap.String("dir", abs))
		}

		for _, d := range drivers {
			info := d.Info()
			discovered = append(discovered, &discovery.DiscoveredDevice{
				ConnectionType: devicetypes.ConnectionTypeVirtual,
				ConnectionInfo: map[string]interface{}{"dir": abs},
				Key:            "virtual:" + abs,
				Driver:         d,
				DevType:        info.DevTypes[0],
				Description:    fmt.Sprintf("%s (%d frames)", info.FullName, len(files)),
				Location:       abs,
			})
		}
	}

	s.logger.Info("Virtual scan completed", zap.Int("devices_found", len(discovered)))
	return discovered, errors.Join(errs...)
}
