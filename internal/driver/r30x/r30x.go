// Package r30x drives UART optical fingerprint modules of the R30x/ZFM
// family. The module keeps scans and character files in its own buffers;
// the host only sees templates.
package r30x

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

const (
	ID   devicetypes.DriverID = 0x0002
	Name                      = "r30x"

	// DevType is the common 256x288 optical module
	DevType devicetypes.DevType = 0x0001

	// Stages is fixed by RegModel, which merges exactly two character buffers
	Stages = 2

	ImageWidth  = 256
	ImageHeight = 288
)

// Config tunes the module link
type Config struct {
	Address      uint32        `mapstructure:"address" default:"4294967295"`
	Password     uint32        `mapstructure:"password"`
	BaudRate     int           `mapstructure:"baud_rate" default:"57600"`
	PacketSize   int           `mapstructure:"packet_size" default:"128"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"150ms"`
}

// Driver is the R30x module driver
type Driver struct {
	config Config
	logger *zap.Logger
	info   *driver.Info
}

var (
	_ driver.Driver       = (*Driver)(nil)
	_ driver.Handshaker   = (*Driver)(nil)
	_ driver.LineSettings = (*Driver)(nil)
)

// New creates the driver. Zero config fields take their defaults.
func New(config Config, logger *zap.Logger) *Driver {
	defaults.SetDefaults(&config)

	return &Driver{
		config: config,
		logger: logger.With(zap.String("driver", Name)),
		info: &driver.Info{
			ID:         ID,
			Name:       Name,
			FullName:   "R30x/ZFM UART optical fingerprint module",
			ScanType:   devicetypes.ScanTypePress,
			Connection: devicetypes.ConnectionTypeSerial,
			DevTypes:   []devicetypes.DevType{DevType},
			Imaging:    true,
		},
	}
}

// Info returns the driver descriptor
func (d *Driver) Info() *driver.Info {
	return d.info
}

// Config returns the effective configuration
func (d *Driver) Config() Config {
	return d.config
}

// Open verifies the module password and starts a session
func (d *Driver) Open(ctx context.Context, transport driver.Transport, devtype devicetypes.DevType) (driver.Session, error) {
	if !d.info.SupportsDevType(devtype) {
		return nil, fmt.Errorf("%w: %s does not serve devtype %s", driver.ErrUnknownDriver, Name, devtype)
	}

	s := &Session{
		link:    d.newLink(transport),
		config:  d.config,
		devtype: devtype,
		logger:  d.logger,
	}

	if err := d.verifyPassword(ctx, s.link); err != nil {
		return nil, err
	}

	d.logger.Debug("Module handshake complete")
	return s, nil
}

// Handshake checks that a module answers VfyPwd on the transport
func (d *Driver) Handshake(ctx context.Context, transport driver.Transport) error {
	return d.verifyPassword(ctx, d.newLink(transport))
}

// BaudRate is the configured module line speed
func (d *Driver) BaudRate() int {
	return d.config.BaudRate
}

func (d *Driver) newLink(transport driver.Transport) *link {
	return &link{
		transport:  transport,
		address:    d.config.Address,
		packetSize: d.config.PacketSize,
	}
}

func (d *Driver) verifyPassword(ctx context.Context, l *link) error {
	password := binary.BigEndian.AppendUint32(nil, d.config.Password)
	code, _, err := l.command(ctx, CmdVfyPwd, password...)
	if err != nil {
		return fmt.Errorf("module handshake: %w", err)
	}
	if code != AckOK {
		return fmt.Errorf("%w: module rejected password (code 0x%02x)", driver.ErrProtocol, code)
	}
	return nil
}

// Session is an open module
type Session struct {
	link    *link
	config  Config
	devtype devicetypes.DevType
	logger  *zap.Logger
}

var (
	_ driver.Session  = (*Session)(nil)
	_ driver.Imager   = (*Session)(nil)
	_ driver.Verifier = (*Session)(nil)
)

// EnrollStages returns the fixed stage count
func (s *Session) EnrollStages() int {
	return Stages
}

// ImageSize returns the module raster geometry
func (s *Session) ImageSize() (int, int) {
	return ImageWidth, ImageHeight
}

// Capture takes an image into the module's image buffer. Conditional
// capture polls until a finger is on the sensor.
func (s *Session) Capture(ctx context.Context, unconditional bool) (*driver.Scan, error) {
	for {
		code, _, err := s.link.command(ctx, CmdGenImg)
		if err != nil {
			return nil, err
		}

		switch code {
		case AckOK:
			return &driver.Scan{}, nil
		case AckNoFinger, AckEnrollFailed:
			if unconditional {
				return nil, driver.ErrNoFingerDetected
			}
		default:
			return nil, fmt.Errorf("%w: GenImg code 0x%02x", driver.ErrProtocol, code)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

// CaptureImage captures and uploads the image buffer. Pixels arrive as
// 4-bit values, two per byte, high nibble first.
func (s *Session) CaptureImage(ctx context.Context, unconditional bool) (*fpimg.Image, error) {
	if _, err := s.Capture(ctx, unconditional); err != nil {
		return nil, err
	}

	code, _, err := s.link.command(ctx, CmdUpImage)
	if err != nil {
		return nil, err
	}
	if code != AckOK {
		return nil, fmt.Errorf("%w: UpImage code 0x%02x", driver.ErrProtocol, code)
	}

	packed, err := s.link.readData(ctx)
	if err != nil {
		return nil, fmt.Errorf("image upload: %w", err)
	}
	if len(packed) != ImageWidth*ImageHeight/2 {
		return nil, fmt.Errorf("%w: image upload of %d bytes", driver.ErrProtocol, len(packed))
	}

	pixels := make([]byte, 0, ImageWidth*ImageHeight)
	for _, b := range packed {
		pixels = append(pixels, (b>>4)*17, (b&0x0f)*17)
	}

	img, err := fpimg.New(ImageWidth, ImageHeight, pixels, 0)
	if err != nil {
		return nil, err
	}
	img.Source = fpimg.Provenance{Driver: Name, DevType: s.devtype}
	return img, nil
}

// generate converts the image buffer into a character file in buffer
func (s *Session) generate(ctx context.Context, buffer byte) (devicetypes.QualityResult, error) {
	code, _, err := s.link.command(ctx, CmdImg2Tz, buffer)
	if err != nil {
		return 0, err
	}

	switch code {
	case AckOK:
		return devicetypes.QualityOK, nil
	case AckDisorderly:
		return devicetypes.QualityRetryRemoveFinger, nil
	case AckTooFewPoints:
		return devicetypes.QualityRetryCenterFinger, nil
	case AckInvalidImage:
		return devicetypes.QualityRetryGeneral, nil
	default:
		return 0, fmt.Errorf("%w: Img2Tz code 0x%02x", driver.ErrProtocol, code)
	}
}

func (s *Session) upload(ctx context.Context, buffer byte) ([]byte, error) {
	code, _, err := s.link.command(ctx, CmdUpChar, buffer)
	if err != nil {
		return nil, err
	}
	if code != AckOK {
		return nil, fmt.Errorf("%w: UpChar code 0x%02x", driver.ErrProtocol, code)
	}

	data, err := s.link.readData(ctx)
	if err != nil {
		return nil, fmt.Errorf("character upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty character file", driver.ErrProtocol)
	}
	return data, nil
}

func (s *Session) download(ctx context.Context, buffer byte, data []byte) error {
	if len(data) == 0 || len(data) > maxTransfer {
		return fmt.Errorf("%w: character file of %d bytes", driver.ErrCorruptData, len(data))
	}

	code, _, err := s.link.command(ctx, CmdDownChar, buffer)
	if err != nil {
		return err
	}
	if code != AckOK {
		return fmt.Errorf("%w: DownChar code 0x%02x", driver.ErrProtocol, code)
	}

	if err := s.link.writeData(ctx, data); err != nil {
		return fmt.Errorf("character download: %w", err)
	}
	return nil
}

// ExtractEnroll generates the character file for the current stage. The
// last stage restores the first file into buffer 1 and merges both.
func (s *Session) ExtractEnroll(ctx context.Context, scan *driver.Scan, accepted []driver.Feature) (*driver.Extraction, error) {
	if len(accepted) >= Stages {
		return nil, fmt.Errorf("%w: %d stages already accepted", driver.ErrProtocol, len(accepted))
	}

	buffer := byte(len(accepted) + 1)
	quality, err := s.generate(ctx, buffer)
	if err != nil {
		return nil, err
	}
	if quality != devicetypes.QualityOK {
		return &driver.Extraction{Result: quality.EnrollResult()}, nil
	}

	if len(accepted) == 0 {
		feature, err := s.upload(ctx, 1)
		if err != nil {
			return nil, err
		}
		return &driver.Extraction{Result: devicetypes.EnrollStagePass, Feature: feature}, nil
	}

	if err := s.download(ctx, 1, accepted[0]); err != nil {
		return nil, err
	}

	code, _, err := s.link.command(ctx, CmdRegModel)
	if err != nil {
		return nil, err
	}
	switch code {
	case AckOK:
	case AckCombineFailed:
		s.logger.Debug("Character files do not belong to the same finger")
		return &driver.Extraction{Result: devicetypes.EnrollFail}, nil
	default:
		return nil, fmt.Errorf("%w: RegModel code 0x%02x", driver.ErrProtocol, code)
	}

	template, err := s.upload(ctx, 1)
	if err != nil {
		return nil, err
	}
	return &driver.Extraction{Result: devicetypes.EnrollComplete, Template: template}, nil
}

// ExtractVerify generates and uploads a probe character file
func (s *Session) ExtractVerify(ctx context.Context, scan *driver.Scan) (driver.Feature, devicetypes.QualityResult, error) {
	quality, err := s.generate(ctx, 1)
	if err != nil || quality != devicetypes.QualityOK {
		return nil, quality, err
	}

	probe, err := s.upload(ctx, 1)
	if err != nil {
		return nil, 0, err
	}
	return probe, devicetypes.QualityOK, nil
}

// Compare loads probe and template into the module and lets it match them
func (s *Session) Compare(ctx context.Context, probe driver.Feature, template []byte) (bool, error) {
	if err := s.download(ctx, 1, probe); err != nil {
		return false, err
	}
	if err := s.download(ctx, 2, template); err != nil {
		return false, err
	}

	code, extra, err := s.link.command(ctx, CmdMatch)
	if err != nil {
		return false, err
	}

	switch code {
	case AckOK:
		if len(extra) >= 2 {
			s.logger.Debug("Module match", zap.Uint16("score", binary.BigEndian.Uint16(extra)))
		}
		return true, nil
	case AckNoMatch:
		return false, nil
	case AckBadPackage:
		return false, fmt.Errorf("%w: module rejected template", driver.ErrCorruptData)
	default:
		return false, fmt.Errorf("%w: Match code 0x%02x", driver.ErrProtocol, code)
	}
}

// Close has nothing to release; the transport belongs to the caller
func (s *Session) Close() error {
	return nil
}
