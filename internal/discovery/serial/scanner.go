// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/protocol"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// Config for serial scanner
type Config struct {
	// Ports are checked whether or not the OS lists them
	Ports []string `json:"ports"`

	// Bridges are USB-UART adapters, "vvvv:pppp", whose ports are checked
	Bridges []string `json:"bridges"`

	// BaudRate overrides the line speed each driver prefers
	BaudRate int           `json:"baud_rate"`
	Timeout  time.Duration `json:"timeout"`
}

const defaultCheckTimeout = 2 * time.Second

// Scanner reports serial ports with a UART sensor module attached. Each
// candidate port is opened and, when the driver supports it, the module
// handshake is run. Ports that cannot be opened or stay silent are dropped.
type Scanner struct {
	logger    *zap.Logger
	registry  *internalDriver.Registry
	config    Config
	listPorts func() ([]*enumerator.PortDetails, error)
	check     func(ctx context.Context, device *discovery.DiscoveredDevice) error
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, registry *internalDriver.Registry, config Config) *Scanner {
	config.Bridges = lo.Map(config.Bridges, func(b string, _ int) string {
		return strings.ToLower(strings.TrimSpace(b))
	})

	s := &Scanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		registry:  registry,
		config:    config,
		listPorts: enumerator.GetDetailedPortsList,
	}
	s.check = s.handshake
	return s
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable reports whether any registered driver attaches over a serial line
func (s *Scanner) IsAvailable() bool {
	return len(s.registry.ByConnection(devicetypes.ConnectionTypeSerial)) > 0
}

// Scan performs serial port device discovery
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	s.logger.Info("Starting serial port scan")

	ports := slices.Clone(s.config.Ports)
	var listErr error

	if len(s.config.Bridges) > 0 {
		details, err := s.listPorts()
		if err != nil {
			listErr = fmt.Errorf("failed to get serial ports: %w", err)
			s.logger.Warn("Serial port enumeration failed", zap.Error(err))
		}

		ports = append(ports, lo.FilterMap(details, func(p *enumerator.PortDetails, _ int) (string, bool) {
			return p.Name, s.isBridge(p)
		})...)
	}
	ports = lo.Uniq(ports)

	drivers := s.registry.ByConnection(devicetypes.ConnectionTypeSerial)
	discovered := make([]*discovery.DiscoveredDevice, 0, len(ports))

	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		for _, d := range drivers {
			device := s.describe(port, d)
			if err := s.check(ctx, device); err != nil {
				s.logger.Debug("No module answered on port",
					zap.String("port", port),
					zap.String("driver", d.Info().Name),
					zap.Error(err),
				)
				continue
			}
			discovered = append(discovered, device)
		}
	}

	s.logger.Info("Serial scan completed",
		zap.Strings("ports", ports),
		zap.Int("devices_found", len(discovered)),
	)
	return discovered, listErr
}

func (s *Scanner) isBridge(p *enumerator.PortDetails) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	id := strings.ToLower(p.VID + ":" + p.PID)
	return slices.Contains(s.config.Bridges, id)
}

func (s *Scanner) describe(port string, d driver.Driver) *discovery.DiscoveredDevice {
	info := d.Info()

	connectionInfo := map[string]interface{}{
		"port": port,
	}
	if baud := s.baudRate(d); baud > 0 {
		connectionInfo["baud_rate"] = baud
	}
	if s.config.Timeout > 0 {
		connectionInfo["timeout"] = s.config.Timeout
	}

	var devtype devicetypes.DevType
	if len(info.DevTypes) > 0 {
		devtype = info.DevTypes[0]
	}

	return &discovery.DiscoveredDevice{
		ConnectionType: devicetypes.ConnectionTypeSerial,
		ConnectionInfo: connectionInfo,
		Key:            "serial:" + port,
		Driver:         d,
		DevType:        devtype,
		Description:    fmt.Sprintf("%s on %s", info.FullName, port),
		Location:       port,
	}
}

func (s *Scanner) baudRate(d driver.Driver) int {
	if s.config.BaudRate > 0 {
		return s.config.BaudRate
	}
	if line, ok := d.(driver.LineSettings); ok {
		return line.BaudRate()
	}
	return 0
}

// handshake opens the port and asks the driver whether its module answers.
// A port held by an open session counts as present.
func (s *Scanner) handshake(ctx context.Context, device *discovery.DiscoveredDevice) error {
	timeout := s.config.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := protocol.CreateProtocol(device.ConnectionType, device.ConnectionInfo, s.logger)
	if err != nil {
		return err
	}
	if err := conn.Open(ctx); err != nil {
		if errors.Is(err, driver.ErrDeviceBusy) {
			return nil
		}
		return err
	}
	defer conn.Close()

	if h, ok := device.Driver.(driver.Handshaker); ok {
		return h.Handshake(ctx, conn)
	}
	return nil
}
