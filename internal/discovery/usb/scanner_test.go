package usb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/driver/bulkimg"
	"fprint-service/internal/protocol"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

func testRegistry(t *testing.T) *internalDriver.Registry {
	t.Helper()
	reg, err := internalDriver.NewDefaultRegistry(config.DriversConfig{
		BulkImg: bulkimg.Config{USBIDs: []driver.USBID{{Vendor: 0x27c6, Product: 0x5110, DevType: 2}}},
	}, zap.NewNop())
	require.NoError(t, err)
	return reg
}

func matched(t *testing.T, reg *internalDriver.Registry, bus, address int, serial func() (string, error)) candidate {
	t.Helper()
	match, ok := reg.MatchUSB(0x27c6, 0x5110).Get()
	require.True(t, ok)
	return candidate{
		desc:   &gousb.DeviceDesc{Bus: bus, Address: address, Port: 3, Vendor: 0x27c6, Product: 0x5110},
		match:  match,
		serial: serial,
	}
}

func TestAvailability(t *testing.T) {
	assert.True(t, NewScanner(zap.NewNop(), testRegistry(t), Config{}).IsAvailable())

	reg, err := internalDriver.NewDefaultRegistry(config.DriversConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, NewScanner(zap.NewNop(), reg, Config{}).IsAvailable())
}

func TestProcessCandidates(t *testing.T) {
	reg := testRegistry(t)
	s := NewScanner(zap.NewNop(), reg, Config{MaxConcurrent: 2})

	candidates := []candidate{
		matched(t, reg, 1, 4, func() (string, error) { return " SN-1 ", nil }),
		matched(t, reg, 1, 7, func() (string, error) { return "", errors.New("pipe") }),
		{desc: nil},
	}

	devices, err := s.processCandidates(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	byKey := map[string]string{}
	for _, d := range devices {
		assert.Equal(t, devicetypes.ConnectionTypeUSB, d.ConnectionType)
		assert.Equal(t, bulkimg.ID, d.Driver.Info().ID)
		assert.Equal(t, devicetypes.DevType(2), d.DevType)
		byKey[d.Key] = d.SerialNumber
	}
	assert.Equal(t, map[string]string{"usb:001:004": "SN-1", "usb:001:007": ""}, byKey)
}

func TestProcessCandidatesCancelled(t *testing.T) {
	reg := testRegistry(t)
	s := NewScanner(zap.NewNop(), reg, Config{MaxConcurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	devices, err := s.processCandidates(ctx, []candidate{
		matched(t, reg, 1, 4, nil),
		matched(t, reg, 1, 5, nil),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, devices)
}

func TestConnectionInfoCarriesIOTimeout(t *testing.T) {
	reg := testRegistry(t)

	device, ok := NewScanner(zap.NewNop(), reg, Config{IOTimeout: 750 * time.Millisecond}).
		describe(matched(t, reg, 1, 4, nil)).Left()
	require.True(t, ok)
	assert.Equal(t, 750*time.Millisecond, device.ConnectionInfo["timeout"])

	device, ok = NewScanner(zap.NewNop(), reg, Config{}).describe(matched(t, reg, 1, 4, nil)).Left()
	require.True(t, ok)
	assert.NotContains(t, device.ConnectionInfo, "timeout")
}

func TestConnectionInfoOpensUSBProtocol(t *testing.T) {
	reg := testRegistry(t)
	s := NewScanner(zap.NewNop(), reg, Config{})

	device, ok := s.describe(matched(t, reg, 2, 9, nil)).Left()
	require.True(t, ok)
	assert.Equal(t, "USB-Bus2-Port3", device.Location)

	conn, err := protocol.CreateProtocol(device.ConnectionType, device.ConnectionInfo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, devicetypes.ConnectionTypeUSB, conn.GetProtocolType())
	assert.False(t, conn.IsOpen())
}
