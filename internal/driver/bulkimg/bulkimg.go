// Package bulkimg drives USB image sensors that return raw gray frames on a
// bulk endpoint using the frame exchange of protocol.FrameHeader
package bulkimg

import (
	"context"
	"fmt"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/internal/driver/imgdev"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

const (
	ID   devicetypes.DriverID = 0x0003
	Name                      = "bulkimg"
)

// Config tunes the driver. USBIDs is the device table; it is fixed once the
// driver is registered.
type Config struct {
	Stages int  `mapstructure:"stages" default:"5"`
	Swipe  bool `mapstructure:"swipe"`

	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	USBIDs   []driver.USBID `mapstructure:"usb_ids"`
	Matching imgdev.Config  `mapstructure:"matching"`
}

// Driver is the USB raw frame driver
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

	scanType := devicetypes.ScanTypePress
	if config.Swipe {
		scanType = devicetypes.ScanTypeSwipe
	}

	devtypes := lo.Uniq(lo.Map(config.USBIDs, func(id driver.USBID, _ int) devicetypes.DevType {
		return id.DevType
	}))

	return &Driver{
		config: config,
		logger: logger.With(zap.String("driver", Name)),
		info: &driver.Info{
			ID:         ID,
			Name:       Name,
			FullName:   "USB bulk raw frame image sensor",
			ScanType:   scanType,
			Connection: devicetypes.ConnectionTypeUSB,
			DevTypes:   devtypes,
			USBIDs:     append([]driver.USBID(nil), config.USBIDs...),
			Imaging:    true,
		},
	}
}

// Info returns the driver descriptor
func (d *Driver) Info() *driver.Info {
	return d.info
}

// Open starts a frame session on a claimed USB interface
func (d *Driver) Open(ctx context.Context, transport driver.Transport, devtype devicetypes.DevType) (driver.Session, error) {
	if !d.info.SupportsDevType(devtype) {
		return nil, fmt.Errorf("%w: %s does not serve devtype %s", driver.ErrUnknownDriver, Name, devtype)
	}

	height := d.config.Height
	if d.config.Swipe {
		height = 0
	}

	return imgdev.NewSession(
		imgdev.NewTransportSource(transport, d.config.Width, height),
		imgdev.SessionOptions{
			Stages:     d.config.Stages,
			Swipe:      d.config.Swipe,
			Config:     d.config.Matching,
			Provenance: fpimg.Provenance{Driver: Name, DevType: devtype},
			Logger:     d.logger.With(zap.Stringer("devtype", devtype)),
		},
	)
}
