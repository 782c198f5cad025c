package fprint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"fprint-service/internal/protocol"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

// Device is an open sensor. It owns its transport exclusively until Close.
// Operations on one Device never run concurrently: a call made while another
// is in progress fails with ErrDeviceBusy.
type Device struct {
	fctx      *Context
	key       string
	driver    driver.Driver
	devtype   devicetypes.DevType
	session   driver.Session
	transport Transport
	logger    *zap.Logger

	// life is cancelled by Close and bounds every operation
	life   context.Context
	cancel context.CancelFunc

	op        sync.Mutex
	closeOnce sync.Once
	closeErr  error

	phase    atomic.Int32
	accepted []driver.Feature
}

// Open claims the device's transport and starts a driver session
func (c *Context) Open(ctx context.Context, dd *DiscoveredDevice) (*Device, error) {
	if dd == nil || dd.Driver == nil {
		return nil, fmt.Errorf("%w: discovered device has no driver", ErrUnknownDriver)
	}

	info := dd.Driver.Info()
	d := &Device{
		fctx:    c,
		key:     dd.Key,
		driver:  dd.Driver,
		devtype: dd.DevType,
		logger: c.logger.With(
			zap.String("device", dd.Key),
			zap.String("driver", info.Name),
			zap.Stringer("devtype", dd.DevType),
		),
	}

	if err := c.acquire(dd.Key, d); err != nil {
		return nil, err
	}

	if err := d.open(ctx, dd); err != nil {
		c.release(dd.Key)
		return nil, err
	}

	d.logger.Info("Device opened")
	return d, nil
}

func (d *Device) open(ctx context.Context, dd *DiscoveredDevice) error {
	transport, err := d.fctx.newTransport(dd.ConnectionType, dd.ConnectionInfo, d.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if err := transport.Open(ctx); err != nil {
		if errors.Is(err, ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	d.life, d.cancel = context.WithCancel(context.Background())

	opCtx, done := d.bind(ctx)
	defer done()

	session, err := d.driver.Open(opCtx, transport, d.devtype)
	if err != nil {
		d.cancel()
		if cerr := transport.Close(); cerr != nil {
			d.logger.Warn("Failed to close transport", zap.Error(cerr))
		}
		return fmt.Errorf("failed to start %s session: %w", d.driver.Info().Name, err)
	}

	d.transport = transport
	d.session = session
	return nil
}

// bind derives the context of one operation: it ends when the caller's
// context does or when the device is closed
func (d *Device) bind(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(d.life, func() { cancel(ErrDeviceClosed) })
	return opCtx, func() {
		stop()
		cancel(nil)
	}
}

// begin takes the operation guard
func (d *Device) begin() (func(), error) {
	if !d.op.TryLock() {
		return nil, fmt.Errorf("%w: operation in progress", ErrDeviceBusy)
	}
	if d.life.Err() != nil {
		d.op.Unlock()
		return nil, ErrDeviceClosed
	}
	return d.op.Unlock, nil
}

// fault reports err, attributing it to Close when the device went away
// while the operation was running
func (d *Device) fault(err error) error {
	if d.life.Err() != nil && !errors.Is(err, ErrDeviceClosed) {
		return fmt.Errorf("%w: %w", ErrDeviceClosed, err)
	}
	return err
}

// Close cancels any operation in progress, then releases the driver session,
// the transport and the handle. It is safe to call more than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()

		// wait for the interrupted operation to return
		d.op.Lock()
		defer d.op.Unlock()

		var errs []error
		if err := d.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session close: %w", err))
		}
		if err := d.transport.Close(); err != nil && !errors.Is(err, ErrDeviceClosed) {
			errs = append(errs, fmt.Errorf("transport close: %w", err))
		}
		d.accepted = nil
		d.setPhase(EnrollIdle)

		d.fctx.release(d.key)
		d.closeErr = errors.Join(errs...)
		d.logger.Info("Device closed", zap.Error(d.closeErr))
	})
	return d.closeErr
}

// Key returns the handle key the device was opened on
func (d *Device) Key() string { return d.key }

// Driver returns the driver serving the device
func (d *Device) Driver() driver.Driver { return d.driver }

// DriverID returns the driver's id
func (d *Device) DriverID() devicetypes.DriverID { return d.driver.Info().ID }

// DevType returns the hardware variant
func (d *Device) DevType() devicetypes.DevType { return d.devtype }

// EnrollStages is the number of accepted scans an enrollment needs
func (d *Device) EnrollStages() int { return d.session.EnrollStages() }

// SupportsImaging reports whether CaptureImage can work
func (d *Device) SupportsImaging() bool {
	_, ok := d.session.(driver.Imager)
	return ok
}

// SupportsVerify reports whether Verify can work
func (d *Device) SupportsVerify() bool {
	_, ok := d.session.(driver.Verifier)
	return ok
}

// ImageWidth is the raster width, absent for devices that do not image
func (d *Device) ImageWidth() mo.Option[int] {
	imager, ok := d.session.(driver.Imager)
	if !ok {
		return mo.None[int]()
	}
	w, _ := imager.ImageSize()
	if w <= 0 {
		return mo.None[int]()
	}
	return mo.Some(w)
}

// ImageHeight is the raster height, absent for devices that do not image
// and for swipe sensors whose height varies per scan
func (d *Device) ImageHeight() mo.Option[int] {
	imager, ok := d.session.(driver.Imager)
	if !ok {
		return mo.None[int]()
	}
	_, h := imager.ImageSize()
	if h <= 0 {
		return mo.None[int]()
	}
	return mo.Some(h)
}

// SupportsPrintData reports whether p was enrolled on this kind of device
func (d *Device) SupportsPrintData(p *PrintData) bool {
	return p != nil && p.DriverID() == d.DriverID() && p.DevType() == d.devtype
}

// SupportsDiscoveredPrint reports whether a stored print belongs to this kind of device
func (d *Device) SupportsDiscoveredPrint(p DiscoveredPrint) bool {
	return p.DriverID == d.DriverID() && p.DevType == d.devtype
}

// CaptureImage returns one raster. With unconditional false it waits for a
// finger.
func (d *Device) CaptureImage(ctx context.Context, unconditional bool) (*fpimg.Image, error) {
	imager, ok := d.session.(driver.Imager)
	if !ok {
		return nil, ErrImagingUnsupported
	}

	release, err := d.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, done := d.bind(ctx)
	defer done()

	img, err := imager.CaptureImage(opCtx, unconditional)
	if err != nil {
		return nil, d.fault(err)
	}

	d.logger.Debug("Image captured", zap.Int("width", img.Width()), zap.Int("height", img.Height()))
	return img, nil
}

// Ping checks that the transport still reaches the sensor. It does not take
// the operation guard, so it can run while an enrollment waits for a finger.
func (d *Device) Ping(ctx context.Context) error {
	if d.life.Err() != nil {
		return ErrDeviceClosed
	}
	pinger, ok := d.transport.(interface {
		Ping(ctx context.Context) error
	})
	if !ok {
		return nil
	}

	opCtx, done := d.bind(ctx)
	defer done()
	if err := pinger.Ping(opCtx); err != nil {
		return d.fault(err)
	}
	return nil
}

// TransportStats returns the transport's I/O counters, absent when the
// transport does not keep any
func (d *Device) TransportStats() mo.Option[protocol.ProtocolStats] {
	tracked, ok := d.transport.(interface {
		Stats() protocol.ProtocolStats
	})
	if !ok {
		return mo.None[protocol.ProtocolStats]()
	}
	return mo.Some(tracked.Stats())
}
