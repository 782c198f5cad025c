// Package virtual implements an image sensor backed by image files or
// frames pushed in memory. It speaks the raw frame exchange over a
// protocol.VirtualConnection.
package virtual

import (
	"context"
	"fmt"

	defaults "github.com/mcuadros/go-defaults"
	"go.uber.org/zap"

	"fprint-service/internal/driver/imgdev"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

const (
	ID   devicetypes.DriverID = 0x0001
	Name                      = "virtual_image"

	// DevType is the only device variant
	DevType devicetypes.DevType = 0
)

// Config tunes the virtual sensor
type Config struct {
	Stages int `mapstructure:"stages" default:"3"`

	// Width and Height declare the frame geometry. Zero accepts any size.
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	Matching imgdev.Config `mapstructure:"matching"`
}

// Driver is the virtual image driver
type Driver struct {
	config Config
	logger *zap.Logger
	info   *driver.Info
}

var _ driver.Driver = (*Driver)(nil)

// New creates the driver. Zero config fields take their defaults.
func New(config Config, logger *zap.Logger) *Driver {
	defaults.SetDefaults(&config)
	config.Matching = config.Matching.WithDefaults()

	return &Driver{
		config: config,
		logger: logger.With(zap.String("driver", Name)),
		info: &driver.Info{
			ID:         ID,
			Name:       Name,
			FullName:   "Virtual image device for debugging",
			ScanType:   devicetypes.ScanTypePress,
			Connection: devicetypes.ConnectionTypeVirtual,
			DevTypes:   []devicetypes.DevType{DevType},
			Imaging:    true,
		},
	}
}

// Info returns the driver descriptor
func (d *Driver) Info() *driver.Info {
	return d.info
}

// Open starts a session on a virtual connection
func (d *Driver) Open(ctx context.Context, transport driver.Transport, devtype devicetypes.DevType) (driver.Session, error) {
	if !d.info.SupportsDevType(devtype) {
		return nil, fmt.Errorf("%w: %s does not serve devtype %s", driver.ErrUnknownDriver, Name, devtype)
	}

	return imgdev.NewSession(
		imgdev.NewTransportSource(transport, d.config.Width, d.config.Height),
		imgdev.SessionOptions{
			Stages:     d.config.Stages,
			Config:     d.config.Matching,
			Provenance: fpimg.Provenance{Driver: Name, DevType: devtype},
			Logger:     d.logger,
		},
	)
}
