// internal/driver/imgdev/session.go
package imgdev

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

// SessionOptions describes the device a Session runs on
type SessionOptions struct {
	Stages     int
	Swipe      bool
	Config     Config
	Provenance fpimg.Provenance
	Logger     *zap.Logger

	// Closer releases driver resources on Close. The transport itself is
	// owned by the caller.
	Closer func() error
}

// Session implements driver.Session, driver.Imager and driver.Verifier for
// any sensor that delivers gray frames
type Session struct {
	source FrameSource
	opts   SessionOptions
	config Config
	logger *zap.Logger
}

var (
	_ driver.Session  = (*Session)(nil)
	_ driver.Imager   = (*Session)(nil)
	_ driver.Verifier = (*Session)(nil)
)

// NewSession creates an image device session over source
func NewSession(source FrameSource, opts SessionOptions) (*Session, error) {
	config := opts.Config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image device config: %w", err)
	}
	if opts.Stages < 1 {
		return nil, fmt.Errorf("enroll stages must be at least 1, got %d", opts.Stages)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		source: source,
		opts:   opts,
		config: config,
		logger: logger,
	}, nil
}

// EnrollStages returns the number of scans that make a template
func (s *Session) EnrollStages() int {
	return s.opts.Stages
}

// ImageSize returns the declared frame geometry
func (s *Session) ImageSize() (int, int) {
	return s.source.Size()
}

// Capture reads one frame. A conditional frame without any ridge area is
// reported as no finger.
func (s *Session) Capture(ctx context.Context, unconditional bool) (*driver.Scan, error) {
	frame, err := s.source.ReadFrame(ctx, unconditional)
	if err != nil {
		return nil, err
	}
	frame.Source = s.opts.Provenance

	if !unconditional {
		std := frame.Clone()
		std.Standardize()
		if coverage(std, s.config.Grid, s.config.RidgeStdDev) == 0 {
			s.logger.Debug("Blank frame on conditional capture")
			return nil, driver.ErrNoFingerDetected
		}
	}

	return &driver.Scan{Image: frame}, nil
}

// CaptureImage returns the raw frame of one capture
func (s *Session) CaptureImage(ctx context.Context, unconditional bool) (*fpimg.Image, error) {
	scan, err := s.Capture(ctx, unconditional)
	if err != nil {
		return nil, err
	}
	return scan.Image, nil
}

// extract runs quality checks and, for a usable scan, the orientation field
func (s *Session) extract(scan *driver.Scan) ([]float32, devicetypes.QualityResult, error) {
	if scan == nil || scan.Image == nil {
		return nil, 0, fmt.Errorf("%w: scan carries no image", driver.ErrProtocol)
	}

	std := scan.Image.Clone()
	std.Standardize()

	if std.Width() < 2*s.config.Grid || std.Height() < 2*s.config.Grid {
		return nil, devicetypes.QualityRetryTooShort, nil
	}

	quality := s.config.Measure(scan.Image, std)
	if q := s.config.Judge(quality, s.opts.Swipe); q != devicetypes.QualityOK {
		s.logger.Debug("Scan rejected",
			zap.Float64("coverage", quality.Coverage),
			zap.Float64("saturation", quality.Saturation),
			zap.Float64("contrast", quality.Contrast),
			zap.Int("height", quality.Height),
		)
		return nil, q, nil
	}

	return OrientationField(std, s.config.Grid), devicetypes.QualityOK, nil
}

// ExtractEnroll processes one enrollment scan. A scan that disagrees with the
// first accepted stage fails the enrollment.
func (s *Session) ExtractEnroll(ctx context.Context, scan *driver.Scan, accepted []driver.Feature) (*driver.Extraction, error) {
	field, quality, err := s.extract(scan)
	if err != nil {
		return nil, err
	}
	if quality != devicetypes.QualityOK {
		return &driver.Extraction{Result: quality.EnrollResult()}, nil
	}

	fields := make([][]float32, 0, len(accepted)+1)
	for _, f := range accepted {
		prev, err := DecodeFeature(f, s.config.Grid)
		if err != nil {
			return nil, err
		}
		fields = append(fields, prev)
	}

	if len(fields) > 0 {
		score := Similarity(fields[0], field)
		if score < s.config.MatchThreshold {
			s.logger.Debug("Stage does not match first stage", zap.Float64("score", score))
			return &driver.Extraction{Result: devicetypes.EnrollFail}, nil
		}
	}
	fields = append(fields, field)

	if len(fields) < s.opts.Stages {
		feature, err := EncodeFeature(field)
		if err != nil {
			return nil, err
		}
		return &driver.Extraction{Result: devicetypes.EnrollStagePass, Feature: feature}, nil
	}

	tmpl := &Template{Version: templateVersion, Grid: s.config.Grid, Features: fields}
	payload, err := tmpl.Marshal()
	if err != nil {
		return nil, err
	}
	return &driver.Extraction{Result: devicetypes.EnrollComplete, Template: payload}, nil
}

// ExtractVerify turns a scan into a probe
func (s *Session) ExtractVerify(ctx context.Context, scan *driver.Scan) (driver.Feature, devicetypes.QualityResult, error) {
	field, quality, err := s.extract(scan)
	if err != nil || quality != devicetypes.QualityOK {
		return nil, quality, err
	}

	feature, err := EncodeFeature(field)
	if err != nil {
		return nil, 0, err
	}
	return feature, devicetypes.QualityOK, nil
}

// Compare matches a probe against the best of the template's stored scans
func (s *Session) Compare(ctx context.Context, probe driver.Feature, template []byte) (bool, error) {
	tmpl, err := ParseTemplate(template)
	if err != nil {
		return false, err
	}
	if tmpl.Grid != s.config.Grid {
		return false, fmt.Errorf("%w: template grid %d, device grid %d", driver.ErrCorruptData, tmpl.Grid, s.config.Grid)
	}

	field, err := DecodeFeature(probe, tmpl.Grid)
	if err != nil {
		return false, err
	}

	best := 0.0
	for _, stored := range tmpl.Features {
		best = max(best, Similarity(field, stored))
	}

	s.logger.Debug("Compared probe", zap.Float64("score", best), zap.Int("stored", len(tmpl.Features)))
	return best >= s.config.MatchThreshold, nil
}

// Close releases driver resources
func (s *Session) Close() error {
	if s.opts.Closer == nil {
		return nil
	}
	if err := s.opts.Closer(); err != nil && !errors.Is(err, driver.ErrDeviceClosed) {
		return err
	}
	return nil
}
