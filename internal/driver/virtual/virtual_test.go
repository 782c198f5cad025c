package virtual

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/driver/imgdev"
	"fprint-service/internal/protocol"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

func openVirtual(t *testing.T, cfg protocol.VirtualConfig) (*protocol.VirtualConnection, driver.Session) {
	t.Helper()
	ctx := context.Background()

	conn := protocol.NewVirtualConnection(&cfg, zap.NewNop())
	require.NoError(t, conn.Open(ctx))
	t.Cleanup(func() { conn.Close() })

	session, err := New(Config{}, zap.NewNop()).Open(ctx, conn, DevType)
	require.NoError(t, err)
	return conn, session
}

func TestInfo(t *testing.T) {
	info := New(Config{}, zap.NewNop()).Info()

	assert.Equal(t, ID, info.ID)
	assert.True(t, info.Imaging)
	assert.True(t, info.SupportsDevType(DevType))
	assert.Equal(t, devicetypes.ConnectionTypeVirtual, info.Connection)
}

func TestOpenRejectsUnknownDevType(t *testing.T) {
	conn := protocol.NewVirtualConnection(&protocol.VirtualConfig{}, zap.NewNop())
	_, err := New(Config{}, zap.NewNop()).Open(context.Background(), conn, 7)
	assert.ErrorIs(t, err, driver.ErrUnknownDriver)
}

func TestEnrollFromFedFrames(t *testing.T) {
	ctx := context.Background()
	conn, session := openVirtual(t, protocol.VirtualConfig{})
	require.Equal(t, 3, session.EnrollStages())

	var accepted []driver.Feature
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Feed(imgdev.Pattern{Width: 96, Height: 96, Angle: 40, Period: 7 + float64(i)/2}.Render()))

		scan, err := session.Capture(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, Name, scan.Image.Source.Driver)

		ext, err := session.ExtractEnroll(ctx, scan, accepted)
		require.NoError(t, err)
		if i < 2 {
			require.Equal(t, devicetypes.EnrollStagePass, ext.Result)
			accepted = append(accepted, ext.Feature)
		} else {
			require.Equal(t, devicetypes.EnrollComplete, ext.Result)
			assert.NotEmpty(t, ext.Template)
		}
	}
}

func TestFramesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for i, angle := range []float64{10, 80} {
		img := imgdev.Pattern{Width: 64, Height: 64, Angle: angle}.Render()
		require.NoError(t, img.SaveToFile(filepath.Join(dir, []string{"a.pgm", "b.pgm"}[i])))
	}

	_, session := openVirtual(t, protocol.VirtualConfig{Dir: dir})
	imager := session.(driver.Imager)

	first, err := imager.CaptureImage(context.Background(), true)
	require.NoError(t, err)
	second, err := imager.CaptureImage(context.Background(), true)
	require.NoError(t, err)
	third, err := imager.CaptureImage(context.Background(), true)
	require.NoError(t, err)

	assert.NotEqual(t, first.Data(), second.Data())
	assert.Equal(t, first.Data(), third.Data())
}

func TestUnconditionalWithoutFinger(t *testing.T) {
	_, session := openVirtual(t, protocol.VirtualConfig{})

	_, err := session.Capture(context.Background(), true)
	assert.ErrorIs(t, err, driver.ErrNoFingerDetected)
}

func TestConditionalCaptureUnblocksOnClose(t *testing.T) {
	conn, session := openVirtual(t, protocol.VirtualConfig{})

	errc := make(chan error, 1)
	go func() {
		_, err := session.Capture(context.Background(), false)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, driver.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return after close")
	}
}
