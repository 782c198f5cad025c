package fprint

import (
	"context"
	"fmt"
	"maps"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// DiscoveredDevice is a sensor that can be opened. It does not hold any
// resource.
type DiscoveredDevice struct {
	// Key identifies the attachment point; at most one Device per key is open
	Key            string                     `json:"key"`
	ConnectionType devicetypes.ConnectionType `json:"connection_type"`
	ConnectionInfo map[string]interface{}     `json:"connection_info"`

	Driver       driver.Driver       `json:"-"`
	DevType      devicetypes.DevType `json:"devtype"`
	Description  string              `json:"description,omitempty"`
	SerialNumber string              `json:"serial_number,omitempty"`
	Location     string              `json:"location,omitempty"`
}

func fromDiscovery(d *discovery.DiscoveredDevice) *DiscoveredDevice {
	return &DiscoveredDevice{
		Key:            d.Key,
		ConnectionType: d.ConnectionType,
		ConnectionInfo: maps.Clone(d.ConnectionInfo),
		Driver:         d.Driver,
		DevType:        d.DevType,
		Description:    d.Description,
		SerialNumber:   d.SerialNumber,
		Location:       d.Location,
	}
}

// DriverID returns the id of the device's driver
func (d *DiscoveredDevice) DriverID() devicetypes.DriverID {
	return d.Driver.Info().ID
}

// SupportsPrintData reports whether p was enrolled on this kind of device
func (d *DiscoveredDevice) SupportsPrintData(p *PrintData) bool {
	return p != nil && p.DriverID() == d.DriverID() && p.DevType() == d.DevType
}

// SupportsDiscoveredPrint reports whether a stored print belongs to this kind of device
func (d *DiscoveredDevice) SupportsDiscoveredPrint(p DiscoveredPrint) bool {
	return p.DriverID == d.DriverID() && p.DevType == d.DevType
}

// DiscoveredDevices is the result of a discovery run
type DiscoveredDevices []*DiscoveredDevice

// ForPrintData returns the first device that can verify p
func (ds DiscoveredDevices) ForPrintData(p *PrintData) mo.Option[*DiscoveredDevice] {
	return mo.TupleToOption(lo.Find(ds, func(d *DiscoveredDevice) bool {
		return d.SupportsPrintData(p)
	}))
}

// ForDiscoveredPrint returns the first device that can verify the stored print
func (ds DiscoveredDevices) ForDiscoveredPrint(p DiscoveredPrint) mo.Option[*DiscoveredDevice] {
	return mo.TupleToOption(lo.Find(ds, func(d *DiscoveredDevice) bool {
		return d.SupportsDiscoveredPrint(p)
	}))
}

// DiscoveredPrint names a stored print without loading it
type DiscoveredPrint struct {
	DriverID devicetypes.DriverID `json:"driver_id"`
	DevType  devicetypes.DevType  `json:"devtype"`
	Finger   devicetypes.Finger   `json:"finger"`

	ctx *Context
}

func (p DiscoveredPrint) key() store.PrintKey {
	return store.PrintKey{DriverID: p.DriverID, DevType: p.DevType, Finger: p.Finger}
}

// Load reads the print from the store it was discovered in
func (p DiscoveredPrint) Load(ctx context.Context) (*PrintData, error) {
	if p.ctx == nil {
		return nil, fmt.Errorf("%w: print was not discovered from a context", ErrPrintNotFound)
	}
	return p.ctx.loadKey(ctx, p.key())
}

// DiscoverDevices runs every available scanner. When a scanner fails the
// devices found by the others are still returned, together with an error
// wrapping ErrTransport. Devices whose driver is not registered are dropped.
func (c *Context) DiscoverDevices(ctx context.Context) (DiscoveredDevices, error) {
	found, err := c.manager.ScanAll(ctx)
	return c.resolve(found, err), err
}

// DiscoverDevicesOn runs only the scanner of the given type, one of the
// names returned by Scanners
func (c *Context) DiscoverDevicesOn(ctx context.Context, scannerType string) (DiscoveredDevices, error) {
	found, err := c.manager.ScanByType(ctx, scannerType)
	return c.resolve(found, err), err
}

// Scanners lists the scanner types that can run on this host
func (c *Context) Scanners() []string {
	return c.manager.GetAvailableScanners()
}

func (c *Context) resolve(found []*discovery.DiscoveredDevice, err error) DiscoveredDevices {
	devices := lo.FilterMap(found, func(d *discovery.DiscoveredDevice, _ int) (*DiscoveredDevice, bool) {
		if d.Driver == nil || !c.registry.IsSupported(d.Driver.Info().ID) {
			c.logger.Debug("Dropping device without registered driver",
				zap.String("key", d.Key),
				zap.String("driver", d.DriverName()),
			)
			return nil, false
		}
		return fromDiscovery(d), true
	})

	c.logger.Debug("Discovery finished", zap.Int("devices", len(devices)), zap.Error(err))
	return devices
}

// DiscoverPrints lists the stored prints without reading them
func (c *Context) DiscoverPrints(ctx context.Context) ([]DiscoveredPrint, error) {
	keys, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Map(keys, func(k store.PrintKey, _ int) DiscoveredPrint {
		return DiscoveredPrint{DriverID: k.DriverID, DevType: k.DevType, Finger: k.Finger, ctx: c}
	}), nil
}
