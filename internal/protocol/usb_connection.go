// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// USBConnection implements DeviceProtocol over bulk endpoints using libusb
type USBConnection struct {
	config   *USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	done     func()
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	logger   *zap.Logger
	mutex    sync.RWMutex
	isOpen   bool
	stats    statsTracker
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "usb"),
			zap.String("vendor_id", fmt.Sprintf("0x%04X", config.VendorID)),
			zap.String("product_id", fmt.Sprintf("0x%04X", config.ProductID)),
		),
	}
}

// Open claims the default interface of the configured device
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}

	uc.logger.Info("Opening USB connection",
		zap.Int("bus", uc.config.Bus),
		zap.Int("address", uc.config.Address),
	)

	uc.ctx = gousb.NewContext()

	device, err := uc.findAndOpenDevice()
	if err != nil {
		uc.ctx.Close()
		uc.ctx = nil
		return err
	}

	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Debug("Kernel driver auto-detach unavailable", zap.Error(err))
	}

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		uc.ctx.Close()
		uc.ctx = nil
		return classifyUSBError("failed to claim interface", err)
	}

	outEndpt, err := intf.OutEndpoint(uc.config.OutEndpoint)
	if err != nil {
		done()
		device.Close()
		uc.ctx.Close()
		uc.ctx = nil
		return fmt.Errorf("%w: failed to get out endpoint %d: %v", driver.ErrTransport, uc.config.OutEndpoint, err)
	}

	inEndpt, err := intf.InEndpoint(uc.config.InEndpoint)
	if err != nil {
		done()
		device.Close()
		uc.ctx.Close()
		uc.ctx = nil
		return fmt.Errorf("%w: failed to get in endpoint %d: %v", driver.ErrTransport, uc.config.InEndpoint, err)
	}

	uc.device = device
	uc.done = done
	uc.outEndpt = outEndpt
	uc.inEndpt = inEndpt
	uc.isOpen = true
	uc.stats.setConnected(true)

	uc.logger.Info("USB connection opened successfully")
	return nil
}

// Close releases the interface, the device and the libusb context
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen {
		return nil
	}

	if uc.done != nil {
		uc.done()
		uc.done = nil
	}

	var errs []error
	if uc.device != nil {
		errs = append(errs, uc.device.Close())
		uc.device = nil
	}
	if uc.ctx != nil {
		errs = append(errs, uc.ctx.Close())
		uc.ctx = nil
	}

	uc.outEndpt = nil
	uc.inEndpt = nil
	uc.isOpen = false
	uc.stats.setConnected(false)

	uc.logger.Info("USB connection closed")
	return errors.Join(errs...)
}

// IsOpen returns whether the connection is open
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.device != nil
}

// Write sends data on the bulk out endpoint
func (uc *USBConnection) Write(ctx context.Context, data []byte) error {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.outEndpt == nil {
		return fmt.Errorf("%w: USB connection not open", driver.ErrTransport)
	}

	writeCtx, cancel := uc.withTimeout(ctx)
	defer cancel()

	startTime := time.Now()
	n, err := uc.outEndpt.WriteContext(writeCtx, data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	uc.stats.record(0, n, time.Since(startTime), err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uc.logger.Error("USB write failed", zap.Error(err))
		return classifyUSBError("failed to write to USB device", err)
	}

	uc.logger.Debug("USB write completed", zap.Int("bytes", n))
	return nil
}

// Read reads up to maxBytes from the bulk in endpoint. It blocks until data
// arrives or ctx is done; the per-transfer timeout only applies when set.
func (uc *USBConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.inEndpt == nil {
		return nil, fmt.Errorf("%w: USB connection not open", driver.ErrTransport)
	}

	readCtx, cancel := uc.withTimeout(ctx)
	defer cancel()

	buffer := make([]byte, maxBytes)
	startTime := time.Now()
	n, err := uc.inEndpt.ReadContext(readCtx, buffer)
	uc.stats.record(n, 0, time.Since(startTime), err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyUSBError("failed to read from USB device", err)
	}

	return buffer[:n], nil
}

// GetProtocolType returns the protocol type
func (uc *USBConnection) GetProtocolType() devicetypes.ConnectionType {
	return devicetypes.ConnectionTypeUSB
}

// Stats returns a snapshot of the transfer counters
func (uc *USBConnection) Stats() ProtocolStats {
	return uc.stats.snapshot()
}

// Ping issues a standard GET_STATUS request to the device
func (uc *USBConnection) Ping(ctx context.Context) error {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.device == nil {
		return fmt.Errorf("%w: USB connection not open", driver.ErrTransport)
	}

	status := make([]byte, 2)
	if _, err := uc.device.Control(gousb.ControlIn|gousb.ControlDevice, 0x00, 0, 0, status); err != nil {
		return classifyUSBError("USB status request failed", err)
	}
	return nil
}

func (uc *USBConnection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.config.Timeout > 0 {
		return context.WithTimeout(ctx, uc.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// findAndOpenDevice opens the device at the configured bus and address, or
// the first one with the configured vendor and product when no address is set
func (uc *USBConnection) findAndOpenDevice() (*gousb.Device, error) {
	devices, err := uc.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if uint16(desc.Vendor) != uc.config.VendorID || uint16(desc.Product) != uc.config.ProductID {
			return false
		}
		if uc.config.Address != 0 && (desc.Bus != uc.config.Bus || desc.Address != uc.config.Address) {
			return false
		}
		return true
	})
	if err != nil {
		for _, d := range devices {
			d.Close()
		}
		return nil, classifyUSBError("failed to enumerate USB devices", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: USB device not found (VID: %04X, PID: %04X)",
			driver.ErrTransport, uc.config.VendorID, uc.config.ProductID)
	}

	if len(devices) > 1 {
		for _, d := range devices[1:] {
			d.Close()
		}
		uc.logger.Warn("Multiple matching USB devices found, using first one")
	}

	return devices[0], nil
}

// classifyUSBError maps libusb errors onto the transport fault kinds
func classifyUSBError(msg string, err error) error {
	var usbErr gousb.Error
	if errors.As(err, &usbErr) && usbErr == gousb.ErrorBusy {
		return fmt.Errorf("%w: %s: %v", driver.ErrDeviceBusy, msg, err)
	}
	return fmt.Errorf("%w: %s: %v", driver.ErrTransport, msg, err)
}
