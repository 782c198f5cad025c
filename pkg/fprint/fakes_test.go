package fprint

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/discovery"
	internalDriver "fprint-service/internal/driver"
	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

// scriptSession replays captures and extraction results
type scriptSession struct {
	mu sync.Mutex

	stages   int
	captures []error
	results  []devicetypes.EnrollResult
	template []byte

	// block makes Capture wait for its context
	block   bool
	started chan struct{}

	captureCount int
	seen         [][]driver.Feature
	closed       bool
}

func (s *scriptSession) EnrollStages() int { return s.stages }

func (s *scriptSession) Capture(ctx context.Context, unconditional bool) (*driver.Scan, error) {
	s.mu.Lock()
	s.captureCount++
	n := s.captureCount
	block := s.block
	var err error
	if len(s.captures) > 0 {
		err, s.captures = s.captures[0], s.captures[1:]
	}
	s.mu.Unlock()

	if block {
		if s.started != nil {
			close(s.started)
		}
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &driver.Scan{Raw: []byte{byte(n)}}, nil
}

func (s *scriptSession) ExtractEnroll(ctx context.Context, scan *driver.Scan, accepted []driver.Feature) (*driver.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = append(s.seen, accepted)
	if len(s.results) == 0 {
		return nil, errors.New("script exhausted")
	}
	result := s.results[0]
	s.results = s.results[1:]

	switch result {
	case devicetypes.EnrollStagePass:
		return &driver.Extraction{Result: result, Feature: driver.Feature(scan.Raw)}, nil
	case devicetypes.EnrollComplete:
		return &driver.Extraction{Result: result, Template: s.template}, nil
	default:
		return &driver.Extraction{Result: result}, nil
	}
}

func (s *scriptSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptSession) captureTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureCount
}

// verifyingSession adds imaging and matching
type verifyingSession struct {
	*scriptSession

	quality    devicetypes.QualityResult
	match      bool
	compareErr error
	compared   []byte
}

func (s *verifyingSession) ImageSize() (int, int) { return 32, 0 }

func (s *verifyingSession) CaptureImage(ctx context.Context, unconditional bool) (*fpimg.Image, error) {
	if _, err := s.Capture(ctx, unconditional); err != nil {
		return nil, err
	}
	return fpimg.New(32, 2, make([]byte, 64), 0)
}

func (s *verifyingSession) ExtractVerify(ctx context.Context, scan *driver.Scan) (driver.Feature, devicetypes.QualityResult, error) {
	if s.quality != devicetypes.QualityOK {
		return nil, s.quality, nil
	}
	return driver.Feature{0xF0}, devicetypes.QualityOK, nil
}

func (s *verifyingSession) Compare(ctx context.Context, probe driver.Feature, template []byte) (bool, error) {
	s.compared = template
	return s.match, s.compareErr
}

// scriptDriver hands out one prepared session
type scriptDriver struct {
	info    driver.Info
	session driver.Session
	openErr error
}

func (d *scriptDriver) Info() *driver.Info { return &d.info }

func (d *scriptDriver) Open(ctx context.Context, t driver.Transport, devtype devicetypes.DevType) (driver.Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.session, nil
}

func newScriptDriver(id devicetypes.DriverID, session driver.Session) *scriptDriver {
	return &scriptDriver{
		info: driver.Info{
			ID:         id,
			Name:       "script",
			Connection: devicetypes.ConnectionTypeVirtual,
			DevTypes:   []devicetypes.DevType{1},
		},
		session: session,
	}
}

// nopTransport counts opens and closes
type nopTransport struct {
	mu      sync.Mutex
	opened  int
	closed  int
	openErr error
}

func (t *nopTransport) Open(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.opened++
	return nil
}

func (t *nopTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *nopTransport) Write(context.Context, []byte) error { return nil }

func (t *nopTransport) Read(context.Context, int) ([]byte, error) { return nil, driver.ErrTransport }

// listScanner reports fixed devices
type listScanner struct {
	devices []*discovery.DiscoveredDevice
	err     error
}

func (s *listScanner) Scan(context.Context) ([]*discovery.DiscoveredDevice, error) {
	return s.devices, s.err
}
func (s *listScanner) GetScannerType() string { return "list" }
func (s *listScanner) IsAvailable() bool      { return true }

type fixture struct {
	ctx       *Context
	transport *nopTransport
	device    *DiscoveredDevice
	store     *store.FileStore
}

// newFixture builds a context with d registered and one discovered device
// for it
func newFixture(t *testing.T, d driver.Driver) *fixture {
	t.Helper()

	registry, err := internalDriver.NewRegistry(zap.NewNop(), d)
	require.NoError(t, err)

	fs, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	transport := &nopTransport{}
	c, err := Init(
		WithRegistry(registry),
		WithScanners(),
		WithStore(fs),
		WithTransportFactory(func(devicetypes.ConnectionType, map[string]interface{}, *zap.Logger) (Transport, error) {
			return transport, nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return &fixture{
		ctx:       c,
		transport: transport,
		store:     fs,
		device: &DiscoveredDevice{
			Key:            "virtual:test",
			ConnectionType: devicetypes.ConnectionTypeVirtual,
			Driver:         d,
			DevType:        1,
		},
	}
}

func (f *fixture) open(t *testing.T) *Device {
	t.Helper()
	dev, err := f.ctx.Open(context.Background(), f.device)
	require.NoError(t, err)
	return dev
}
