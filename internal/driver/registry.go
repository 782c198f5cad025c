// internal/driver/registry.go
package driver

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// Registry is the catalog of compiled-in drivers. It is filled once by
// NewRegistry and never mutated afterwards, so lookups need no locking.
type Registry struct {
	drivers map[devicetypes.DriverID]driver.Driver
	order   []devicetypes.DriverID
	logger  *zap.Logger
}

// USBMatch is a driver and devtype resolved from a USB vendor/product pair
type USBMatch struct {
	Driver  driver.Driver
	DevType devicetypes.DevType
}

// NewRegistry builds a registry from drivers. Driver ids must be non-zero and unique.
func NewRegistry(logger *zap.Logger, drivers ...driver.Driver) (*Registry, error) {
	r := &Registry{
		drivers: make(map[devicetypes.DriverID]driver.Driver, len(drivers)),
		logger:  logger,
	}

	for _, d := range drivers {
		info := d.Info()
		if info.ID == 0 {
			return nil, fmt.Errorf("driver %q has no id", info.Name)
		}
		if existing, ok := r.drivers[info.ID]; ok {
			return nil, fmt.Errorf("driver id %s registered twice (%s, %s)",
				info.ID, existing.Info().Name, info.Name)
		}

		r.drivers[info.ID] = d
		r.order = append(r.order, info.ID)

		logger.Info("Driver registered",
			zap.String("driver", info.Name),
			zap.Stringer("driver_id", info.ID),
			zap.String("connection", string(info.Connection)),
			zap.Int("devtypes", len(info.DevTypes)),
		)
	}

	slices.Sort(r.order)
	return r, nil
}

// Lookup returns the driver registered under id
func (r *Registry) Lookup(id devicetypes.DriverID) mo.Option[driver.Driver] {
	return mo.TupleToOption(r.get(id))
}

// Get returns the driver for id or ErrUnknownDriver
func (r *Registry) Get(id devicetypes.DriverID) (driver.Driver, error) {
	d, ok := r.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnknownDriver, id)
	}
	return d, nil
}

func (r *Registry) get(id devicetypes.DriverID) (driver.Driver, bool) {
	d, ok := r.drivers[id]
	return d, ok
}

// ListDrivers returns all registered drivers ordered by id
func (r *Registry) ListDrivers() []driver.Driver {
	return lo.Map(r.order, func(id devicetypes.DriverID, _ int) driver.Driver {
		return r.drivers[id]
	})
}

// IsSupported checks whether a driver with id is registered
func (r *Registry) IsSupported(id devicetypes.DriverID) bool {
	_, ok := r.drivers[id]
	return ok
}

// ByName finds a driver by its short name
func (r *Registry) ByName(name string) mo.Option[driver.Driver] {
	return mo.TupleToOption(lo.Find(r.ListDrivers(), func(d driver.Driver) bool {
		return d.Info().Name == name
	}))
}

// ByConnection returns the drivers attached through connectionType
func (r *Registry) ByConnection(connectionType devicetypes.ConnectionType) []driver.Driver {
	return lo.Filter(r.ListDrivers(), func(d driver.Driver, _ int) bool {
		return d.Info().Connection == connectionType
	})
}

// MatchUSB resolves a vendor/product pair to the first driver that claims it
func (r *Registry) MatchUSB(vendor, product uint16) mo.Option[USBMatch] {
	for _, d := range r.ByConnection(devicetypes.ConnectionTypeUSB) {
		if devtype, ok := d.Info().MatchUSB(vendor, product); ok {
			return mo.Some(USBMatch{Driver: d, DevType: devtype})
		}
	}
	return mo.None[USBMatch]()
}
