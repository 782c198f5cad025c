package fprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	"fprint-service/pkg/devicetypes"
)

func TestOpenIsExclusive(t *testing.T) {
	session := &scriptSession{stages: 2}
	f := newFixture(t, newScriptDriver(7, session))

	dev := f.open(t)
	assert.Equal(t, "virtual:test", dev.Key())
	assert.Equal(t, devicetypes.DriverID(7), dev.DriverID())
	assert.Equal(t, 2, dev.EnrollStages())

	_, err := f.ctx.Open(context.Background(), f.device)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	assert.True(t, session.closed)
	assert.Equal(t, 1, f.transport.closed)

	again := f.open(t)
	require.NoError(t, again.Close())
	assert.Equal(t, 2, f.transport.opened)
}

func TestOpenFailureReleasesKey(t *testing.T) {
	d := newScriptDriver(7, &scriptSession{stages: 2})
	d.openErr = errors.New("handshake refused")
	f := newFixture(t, d)

	_, err := f.ctx.Open(context.Background(), f.device)
	require.Error(t, err)
	assert.Equal(t, 1, f.transport.closed)

	d.openErr = nil
	dev := f.open(t)
	require.NoError(t, dev.Close())
}

func TestOpenTransportErrors(t *testing.T) {
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 2}))

	f.transport.openErr = errors.New("no such port")
	_, err := f.ctx.Open(context.Background(), f.device)
	assert.ErrorIs(t, err, ErrTransport)

	f.ctx.newTransport = func(devicetypes.ConnectionType, map[string]interface{}, *zap.Logger) (Transport, error) {
		return nil, errors.New("bad parameters")
	}
	_, err = f.ctx.Open(context.Background(), f.device)
	assert.ErrorIs(t, err, ErrTransport)

	_, err = f.ctx.Open(context.Background(), &DiscoveredDevice{Key: "nothing"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOpenAfterContextClose(t *testing.T) {
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 2}))
	dev := f.open(t)

	require.NoError(t, f.ctx.Close())
	assert.Equal(t, 1, f.transport.closed)

	_, err := f.ctx.Open(context.Background(), f.device)
	assert.ErrorIs(t, err, ErrDeviceClosed)

	_, err = dev.EnrollStage(context.Background())
	assert.ErrorIs(t, err, ErrDeviceClosed)
}

func TestCloseUnblocksCapture(t *testing.T) {
	session := &scriptSession{stages: 2, block: true, started: make(chan struct{})}
	f := newFixture(t, newScriptDriver(7, session))
	dev := f.open(t)

	errc := make(chan error, 1)
	go func() {
		_, err := dev.EnrollStage(context.Background())
		errc <- err
	}()

	<-session.started
	_, err := dev.EnrollStage(context.Background())
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, dev.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDeviceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return after close")
	}
	assert.Equal(t, EnrollIdle, dev.EnrollPhase())
}

func TestCallerCancelStopsCapture(t *testing.T) {
	session := &scriptSession{stages: 2, block: true, started: make(chan struct{})}
	f := newFixture(t, newScriptDriver(7, session))
	dev := f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := dev.EnrollStage(ctx)
		errc <- err
	}()

	<-session.started
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrDeviceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return after cancel")
	}
}

func TestImagingCapabilities(t *testing.T) {
	plain := newFixture(t, newScriptDriver(7, &scriptSession{stages: 2})).open(t)
	assert.False(t, plain.SupportsImaging())
	assert.False(t, plain.SupportsVerify())
	assert.True(t, plain.ImageWidth().IsAbsent())

	_, err := plain.CaptureImage(context.Background(), true)
	assert.ErrorIs(t, err, ErrImagingUnsupported)

	swipe := newFixture(t, newScriptDriver(7, &verifyingSession{scriptSession: &scriptSession{stages: 2}})).open(t)
	assert.True(t, swipe.SupportsImaging())
	assert.Equal(t, 32, swipe.ImageWidth().MustGet())
	assert.True(t, swipe.ImageHeight().IsAbsent())

	img, err := swipe.CaptureImage(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Height())
}

func TestDiscoverDevices(t *testing.T) {
	d := newScriptDriver(7, &scriptSession{stages: 2})
	f := newFixture(t, d)

	f.ctx.manager.RegisterScanner(&listScanner{
		devices: []*discovery.DiscoveredDevice{
			{Key: "virtual:a", ConnectionType: devicetypes.ConnectionTypeVirtual, Driver: d, DevType: 1},
			{Key: "virtual:b", ConnectionType: devicetypes.ConnectionTypeVirtual, Driver: newScriptDriver(42, nil), DevType: 1},
		},
		err: errors.New("bus went away"),
	})

	devices, err := f.ctx.DiscoverDevices(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	require.Len(t, devices, 1)
	assert.Equal(t, "virtual:a", devices[0].Key)

	match, _ := NewPrintData(7, 1, []byte{0x01})
	assert.Equal(t, "virtual:a", devices.ForPrintData(match).MustGet().Key)

	stranger, _ := NewPrintData(7, 2, []byte{0x01})
	assert.True(t, devices.ForPrintData(stranger).IsAbsent())
	assert.True(t, devices.ForDiscoveredPrint(DiscoveredPrint{DriverID: 9, DevType: 1, Finger: 1}).IsAbsent())
}
