package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/driver/bulkimg"
	"fprint-service/internal/driver/r30x"
	"fprint-service/internal/driver/virtual"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

type stubDriver struct {
	info driver.Info
}

func (s *stubDriver) Info() *driver.Info { return &s.info }

func (s *stubDriver) Open(context.Context, driver.Transport, devicetypes.DevType) (driver.Session, error) {
	return nil, nil
}

func TestNewRegistryRejectsBadIDs(t *testing.T) {
	_, err := NewRegistry(zap.NewNop(), &stubDriver{info: driver.Info{Name: "zero"}})
	assert.Error(t, err)

	_, err = NewRegistry(zap.NewNop(),
		&stubDriver{info: driver.Info{ID: 5, Name: "a"}},
		&stubDriver{info: driver.Info{ID: 5, Name: "b"}},
	)
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	cfg := config.DriversConfig{
		BulkImg: bulkimg.Config{USBIDs: []driver.USBID{{Vendor: 0x1234, Product: 0x5678, DevType: 3}}},
	}

	reg, err := NewDefaultRegistry(cfg, zap.NewNop())
	require.NoError(t, err)

	ids := make([]devicetypes.DriverID, 0)
	for _, d := range reg.ListDrivers() {
		ids = append(ids, d.Info().ID)
	}
	assert.Equal(t, []devicetypes.DriverID{virtual.ID, r30x.ID, bulkimg.ID}, ids)

	assert.True(t, reg.IsSupported(r30x.ID))
	assert.False(t, reg.IsSupported(0x7777))

	d, ok := reg.Lookup(virtual.ID).Get()
	require.True(t, ok)
	assert.Equal(t, virtual.Name, d.Info().Name)

	assert.True(t, reg.Lookup(0x7777).IsAbsent())
	_, err = reg.Get(0x7777)
	assert.ErrorIs(t, err, driver.ErrUnknownDriver)

	assert.True(t, reg.ByName(r30x.Name).IsPresent())
	assert.True(t, reg.ByName("nope").IsAbsent())

	match, ok := reg.MatchUSB(0x1234, 0x5678).Get()
	require.True(t, ok)
	assert.Equal(t, bulkimg.ID, match.Driver.Info().ID)
	assert.Equal(t, devicetypes.DevType(3), match.DevType)
	assert.True(t, reg.MatchUSB(0x1234, 0x0000).IsAbsent())

	serial := reg.ByConnection(devicetypes.ConnectionTypeSerial)
	require.Len(t, serial, 1)
	assert.Equal(t, r30x.ID, serial[0].Info().ID)
}

func TestDefaultDriversWithoutUSBTable(t *testing.T) {
	drivers := DefaultDrivers(config.DriversConfig{}, zap.NewNop())
	assert.Len(t, drivers, 2)
}
