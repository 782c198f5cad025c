// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/pkg/devicetypes"
)

// Config for USB scanner
type Config struct {
	ScanTimeout time.Duration `json:"scan_timeout"`

	// IOTimeout is handed to the connections opened for discovered sensors
	IOTimeout     time.Duration `json:"io_timeout"`
	MaxConcurrent int           `json:"max_concurrent"`
	EnableDebug   bool          `json:"enable_debug"`
}

// candidate is an opened USB device waiting to be described
type candidate struct {
	desc   *gousb.DeviceDesc
	match  internalDriver.USBMatch
	serial func() (string, error)
}

// Scanner finds USB sensors whose vendor/product pair a registered driver claims
type Scanner struct {
	logger   *zap.Logger
	registry *internalDriver.Registry
	config   Config
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, registry *internalDriver.Registry, config Config) *Scanner {
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 10 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	return &Scanner{
		logger:   logger.With(zap.String("scanner", "usb")),
		registry: registry,
		config:   config,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable reports whether any registered driver attaches over USB
func (s *Scanner) IsAvailable() bool {
	return len(s.registry.ByConnection(devicetypes.ConnectionTypeUSB)) > 0
}

// Scan enumerates the bus and resolves every claimed device to its driver
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	startTime := time.Now()
	s.logger.Info("Starting USB device scan")

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()
	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	matches := make(map[*gousb.DeviceDesc]internalDriver.USBMatch)
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		match, ok := s.registry.MatchUSB(uint16(desc.Vendor), uint16(desc.Product)).Get()
		if ok {
			matches[desc] = match
		}
		return ok
	})
	defer s.closeAllDevices(devices)

	// OpenDevices reports devices it could not open but still returns the rest
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err != nil {
		s.logger.Warn("Some USB devices could not be opened", zap.Error(err))
	}

	candidates := lo.Map(devices, func(d *gousb.Device, _ int) candidate {
		return candidate{desc: d.Desc, match: matches[d.Desc], serial: d.SerialNumber}
	})

	discovered, err := s.processCandidates(scanCtx, candidates)
	if err != nil {
		return discovered, fmt.Errorf("USB scan incomplete after %d of %d devices: %w", len(discovered), len(candidates), err)
	}

	s.logger.Info("USB scan completed",
		zap.Int("devices_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)

	return discovered, nil
}

// processCandidates describes candidates on a bounded worker pool. When ctx
// ends first it returns what was described so far together with ctx.Err().
func (s *Scanner) processCandidates(ctx context.Context, candidates []candidate) ([]*discovery.DiscoveredDevice, error) {
	discovered := make([]*discovery.DiscoveredDevice, 0, len(candidates))
	if len(candidates) == 0 {
		return discovered, nil
	}

	candidateChan := make(chan candidate, len(candidates))
	resultChan := make(chan mo.Either[*discovery.DiscoveredDevice, error], len(candidates))

	for i := 0; i < min(s.config.MaxConcurrent, len(candidates)); i++ {
		go s.deviceWorker(ctx, candidateChan, resultChan)
	}

	for _, c := range candidates {
		candidateChan <- c
	}
	close(candidateChan)

	var interrupted error
	for range candidates {
		select {
		case result := <-resultChan:
			result.
				ForEach(
					func(device *discovery.DiscoveredDevice) { discovered = append(discovered, device) },
					func(err error) {
						if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
							interrupted = ctxErr
							return
						}
						s.logger.Warn("Device processing failed", zap.Error(err))
					},
				)
		case <-ctx.Done():
			s.logger.Warn("USB scan interrupted", zap.Error(ctx.Err()))
			return discovered, ctx.Err()
		}
	}

	if interrupted != nil {
		s.logger.Warn("USB scan interrupted", zap.Error(interrupted))
	}
	return discovered, interrupted
}

// deviceWorker describes candidates until the channel drains
func (s *Scanner) deviceWorker(ctx context.Context, candidateChan <-chan candidate, resultChan chan<- mo.Either[*discovery.DiscoveredDevice, error]) {
	for c := range candidateChan {
		if ctx.Err() != nil {
			resultChan <- mo.Right[*discovery.DiscoveredDevice](ctx.Err())
			continue
		}
		resultChan <- s.describe(c)
	}
}

// describe builds the discovery record for one matched device
func (s *Scanner) describe(c candidate) mo.Either[*discovery.DiscoveredDevice, error] {
	if c.desc == nil || c.match.Driver == nil {
		return mo.Right[*discovery.DiscoveredDevice](fmt.Errorf("USB device without descriptor or driver"))
	}

	serialNumber := ""
	if c.serial != nil {
		sn, err := c.serial()
		if err != nil {
			s.logger.Debug("Failed to read serial number",
				zap.String("location", location(c.desc)),
				zap.Error(err),
			)
		}
		serialNumber = strings.TrimSpace(sn)
	}

	info := c.match.Driver.Info()
	return mo.Left[*discovery.DiscoveredDevice, error](&discovery.DiscoveredDevice{
		ConnectionType: devicetypes.ConnectionTypeUSB,
		ConnectionInfo: s.connectionInfo(c.desc),
		Key:            fmt.Sprintf("usb:%03d:%03d", c.desc.Bus, c.desc.Address),
		Driver:         c.match.Driver,
		DevType:        c.match.DevType,
		Description:    fmt.Sprintf("%s %04x:%04x", info.FullName, uint16(c.desc.Vendor), uint16(c.desc.Product)),
		SerialNumber:   serialNumber,
		Location:       location(c.desc),
	})
}

// connectionInfo creates the parameters protocol.CreateProtocol expects
func (s *Scanner) connectionInfo(desc *gousb.DeviceDesc) map[string]interface{} {
	info := map[string]interface{}{
		"vendor_id":  fmt.Sprintf("0x%04x", uint16(desc.Vendor)),
		"product_id": fmt.Sprintf("0x%04x", uint16(desc.Product)),
		"bus":        desc.Bus,
		"address":    desc.Address,
	}
	if s.config.IOTimeout > 0 {
		info["timeout"] = s.config.IOTimeout
	}
	return info
}

func location(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("USB-Bus%d-Port%d", desc.Bus, desc.Port)
}

// closeAllDevices safely closes all opened USB devices
func (s *Scanner) closeAllDevices(devices []*gousb.Device) {
	for i, device := range devices {
		if device != nil {
			if err := device.Close(); err != nil {
				s.logger.Warn("Failed to close USB device",
					zap.Int("device_index", i),
					zap.Error(err),
				)
			}
		}
	}
}
