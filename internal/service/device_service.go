// internal/service/device_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fprint-service/internal/model"
	"fprint-service/internal/utils"
	"fprint-service/pkg/fpimg"
	"fprint-service/pkg/fprint"
)

// DeviceService keeps the open devices, each behind a session id
type DeviceService struct {
	fctx      *fprint.Context
	discovery *DiscoveryService
	publisher EventPublisher
	logger    *utils.ServiceLogger

	mutex    sync.RWMutex
	sessions map[uuid.UUID]*deviceSession
}

type deviceSession struct {
	id       uuid.UUID
	device   *fprint.Device
	logger   *utils.DeviceLogger
	openedAt time.Time
}

// NewDeviceService creates a new device service instance
func NewDeviceService(fctx *fprint.Context, discovery *DiscoveryService, publisher EventPublisher, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		fctx:      fctx,
		discovery: discovery,
		publisher: publisherOrNop(publisher),
		logger:    utils.NewServiceLogger(logger, "device-service"),
		sessions:  make(map[uuid.UUID]*deviceSession),
	}
}

// ListDevices runs discovery and marks the devices that have a session.
// An empty scannerType runs every scanner.
func (s *DeviceService) ListDevices(ctx context.Context, scannerType string) ([]model.DeviceRecord, error) {
	devices, err := s.discovery.Discover(ctx, scannerType)

	open := make(map[string]uuid.UUID)
	s.mutex.RLock()
	for id, sess := range s.sessions {
		open[sess.device.Key()] = id
	}
	s.mutex.RUnlock()

	records := make([]model.DeviceRecord, 0, len(devices))
	for i, dd := range devices {
		record := deviceRecord(i, dd)
		if id, ok := open[dd.Key]; ok {
			record.Status = model.DeviceStatusOpen
			record.SessionID = &id
		}
		records = append(records, record)
	}
	return records, err
}

// Open opens the device at index of the last discovery
func (s *DeviceService) Open(ctx context.Context, index int) (*model.Session, error) {
	dd, err := s.discovery.Device(index)
	if err != nil {
		return nil, err
	}

	info := dd.Driver.Info()
	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, dd.Key, info.Name, dd.DevType.String())

	dev, err := s.fctx.Open(ctx, dd)
	if err != nil {
		deviceLogger.LogConnection("open", err)
		return nil, err
	}

	sess := &deviceSession{
		id:       uuid.New(),
		device:   dev,
		logger:   deviceLogger,
		openedAt: time.Now(),
	}

	s.mutex.Lock()
	s.sessions[sess.id] = sess
	s.mutex.Unlock()

	deviceLogger.LogConnection("open", nil)
	s.publisher.Publish(model.NewEvent(model.EventSessionOpened, sess.id.String(), model.SeverityInfo, model.JSONObject{
		"device_key": dd.Key,
		"driver":     info.Name,
	}))

	return sess.record(), nil
}

// Get describes an open session
func (s *DeviceService) Get(id uuid.UUID) (*model.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.record(), nil
}

// List describes every open session
func (s *DeviceService) List() []*model.Session {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.record())
	}
	return out
}

// Close closes the session's device. An operation in progress on it is
// interrupted.
func (s *DeviceService) Close(id uuid.UUID) error {
	s.mutex.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	err := sess.device.Close()
	sess.logger.LogConnection("close", err)
	s.publisher.Publish(model.NewEvent(model.EventSessionClosed, id.String(), model.SeverityInfo, model.JSONObject{
		"device_key": sess.device.Key(),
	}))
	return err
}

// CloseAll closes every session, used on shutdown
func (s *DeviceService) CloseAll() error {
	s.mutex.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mutex.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := s.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping checks the session's transport and returns the refreshed session
func (s *DeviceService) Ping(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	if err := sess.device.Ping(ctx); err != nil {
		sess.logger.LogConnection("ping", err)
		return nil, err
	}
	return sess.record(), nil
}

// CaptureImage takes one raster from the session's device
func (s *DeviceService) CaptureImage(ctx context.Context, id uuid.UUID, unconditional bool) (*fpimg.Image, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	img, err := sess.device.CaptureImage(ctx, unconditional)
	sess.logger.LogOperation(string(model.OperationTypeCapture), id.String(), time.Since(start), err)
	return img, err
}

func (s *DeviceService) session(id uuid.UUID) (*deviceSession, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (sess *deviceSession) record() *model.Session {
	dev := sess.device
	info := dev.Driver().Info()

	return &model.Session{
		ID:           sess.id,
		DeviceKey:    dev.Key(),
		Driver:       info.Name,
		DriverID:     info.ID.String(),
		DevType:      dev.DevType().String(),
		EnrollStages: dev.EnrollStages(),
		Imaging:      dev.SupportsImaging(),
		Verify:       dev.SupportsVerify(),
		ImageWidth:   dev.ImageWidth().ToPointer(),
		ImageHeight:  dev.ImageHeight().ToPointer(),
		EnrollPhase:  dev.EnrollPhase().String(),
		Transport:    dev.TransportStats().ToPointer(),
		OpenedAt:     sess.openedAt,
	}
}
