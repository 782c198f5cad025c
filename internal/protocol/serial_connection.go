// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

const defaultSerialPoll = 100 * time.Millisecond

// SerialConnection implements DeviceProtocol for UART attached sensors
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsTracker
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		StopBits: serialStopBits(sc.config.StopBits),
	}

	switch sc.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		if portErr, ok := err.(*serial.PortError); ok && portErr.Code() == serial.PortBusy {
			return fmt.Errorf("%w: serial port %s: %v", driver.ErrDeviceBusy, sc.config.Port, err)
		}
		return fmt.Errorf("%w: failed to open serial port %s: %v", driver.ErrTransport, sc.config.Port, err)
	}

	// Reads poll so a cancelled context is noticed without closing the port
	if err := port.SetReadTimeout(sc.pollInterval()); err != nil {
		port.Close()
		return fmt.Errorf("%w: failed to set read timeout: %v", driver.ErrTransport, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Debug("Failed to flush serial input", zap.Error(err))
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.setConnected(true)

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.stats.setConnected(false)

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("%w: failed to close serial port: %v", driver.ErrTransport, err)
	}

	sc.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("%w: serial port not open", driver.ErrTransport)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	sc.stats.record(0, n, time.Since(startTime), err)
	if err != nil {
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("%w: failed to write to serial port: %v", driver.ErrTransport, err)
	}

	sc.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

// Read returns as soon as at least one byte is available. It waits in poll
// interval steps until data arrives, the configured timeout passes or ctx
// is done.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, fmt.Errorf("%w: serial port not open", driver.ErrTransport)
	}

	var deadline time.Time
	if sc.config.Timeout > 0 {
		deadline = time.Now().Add(sc.config.Timeout)
	}

	buffer := make([]byte, maxBytes)
	startTime := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := sc.port.Read(buffer)
		if err != nil {
			sc.stats.record(0, 0, 0, err)
			return nil, fmt.Errorf("%w: failed to read from serial port: %v", driver.ErrTransport, err)
		}
		if n > 0 {
			sc.stats.record(n, 0, time.Since(startTime), nil)
			return buffer[:n], nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: serial read timed out after %s", driver.ErrTransport, sc.config.Timeout)
		}
	}
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() devicetypes.ConnectionType {
	return devicetypes.ConnectionTypeSerial
}

// Stats returns a snapshot of the transfer counters
func (sc *SerialConnection) Stats() ProtocolStats {
	return sc.stats.snapshot()
}

// Ping checks the modem status lines, which fails once the adapter is unplugged
func (sc *SerialConnection) Ping(ctx context.Context) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("%w: serial port not open", driver.ErrTransport)
	}

	if _, err := sc.port.GetModemStatusBits(); err != nil {
		return fmt.Errorf("%w: serial port status: %v", driver.ErrTransport, err)
	}
	return nil
}

func (sc *SerialConnection) pollInterval() time.Duration {
	if sc.config.PollInterval > 0 {
		return sc.config.PollInterval
	}
	return defaultSerialPoll
}

func serialStopBits(bits int) serial.StopBits {
	switch bits {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}
