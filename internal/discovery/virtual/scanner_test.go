package virtual

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/driver/imgdev"
	"fprint-service/internal/driver/virtual"
	"fprint-service/pkg/devicetypes"
)

func TestScanFrameDirectories(t *testing.T) {
	dir := t.TempDir()
	img := imgdev.Pattern{Width: 64, Height: 64, Angle: 30}.Render()
	require.NoError(t, img.SaveToFile(filepath.Join(dir, "a.pgm")))

	reg, err := internalDriver.NewDefaultRegistry(config.DriversConfig{}, zap.NewNop())
	require.NoError(t, err)

	missing := filepath.Join(dir, "missing")
	s := NewScanner(zap.NewNop(), reg, []string{dir, missing})
	require.True(t, s.IsAvailable())

	devices, err := s.Scan(context.Background())
	assert.ErrorContains(t, err, missing)
	require.Len(t, devices, 1)

	d := devices[0]
	assert.Equal(t, "virtual:"+dir, d.Key)
	assert.Equal(t, devicetypes.ConnectionTypeVirtual, d.ConnectionType)
	assert.Equal(t, virtual.ID, d.Driver.Info().ID)
	assert.Equal(t, dir, d.ConnectionInfo["dir"])
	assert.Contains(t, d.Description, "1 frames")
}

func TestUnavailableWithoutDirs(t *testing.T) {
	reg, err := internalDriver.NewDefaultRegistry(config.DriversConfig{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, NewScanner(zap.NewNop(), reg, nil).IsAvailable())
}
