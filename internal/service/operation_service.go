// internal/service/operation_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/model"
	"fprint-service/internal/utils"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/fprint"
)

// OperationService runs enrollments and verifications on open sessions and
// manages the stored prints
type OperationService struct {
	fctx        *fprint.Context
	devices     *DeviceService
	config      *config.EnrollConfig
	publisher   EventPublisher
	logger      *utils.ServiceLogger
	auditLogger *utils.AuditLogger
}

// NewOperationService creates a new operation service instance
func NewOperationService(
	fctx *fprint.Context,
	devices *DeviceService,
	cfg *config.EnrollConfig,
	publisher EventPublisher,
	logger *zap.Logger,
) *OperationService {
	return &OperationService{
		fctx:        fctx,
		devices:     devices,
		config:      cfg,
		publisher:   publisherOrNop(publisher),
		logger:      utils.NewServiceLogger(logger, "operation-service"),
		auditLogger: utils.NewAuditLogger(logger),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Enroll runs a complete enrollment for finger and saves the print when it
// completes. More than MaxRetries retry results abandon the enrollment with
// ErrRetryBudgetExceeded; zero means no limit. An enrollment the driver
// fails is not an error: the outcome reports it.
func (s *OperationService) Enroll(ctx context.Context, sessionID uuid.UUID, finger devicetypes.Finger) (*model.EnrollOutcome, error) {
	if !finger.Valid() {
		return nil, fmt.Errorf("%w: %d", fprint.ErrInvalidFinger, int(finger))
	}
	sess, err := s.devices.session(sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.config.Timeout)
	defer cancel()

	outcome := &model.EnrollOutcome{
		OperationID: uuid.New(),
		SessionID:   sessionID,
		StartedAt:   time.Now(),
	}
	opLogger := utils.NewOperationLogger(sess.logger.Logger, string(model.OperationTypeEnroll), outcome.OperationID.String())
	opLogger.Start(zap.Stringer("finger", finger), zap.Int("stages", sess.device.EnrollStages()))

	s.publish(model.EventEnrollStarted, sessionID, model.SeverityInfo, model.JSONObject{
		"operation_id": outcome.OperationID,
		"finger":       int(finger),
		"stages":       sess.device.EnrollStages(),
	})

	step, err := sess.device.Enroll(ctx, func(step *fprint.EnrollStep) error {
		outcome.Steps = append(outcome.Steps, model.EnrollStepRecord{
			Result:   step.Result.String(),
			Code:     int(step.Result),
			Accepted: step.Accepted,
			Stages:   step.Stages,
		})
		s.publish(model.EventEnrollStep, sessionID, model.SeverityInfo, model.JSONObject{
			"operation_id": outcome.OperationID,
			"result":       step.Result.String(),
			"accepted":     step.Accepted,
			"stages":       step.Stages,
		})

		switch {
		case step.Result == devicetypes.EnrollStagePass:
			opLogger.Progress("Enroll stage accepted", step.Accepted, step.Stages)
		case step.Result.IsRetry():
			outcome.Retries++
			if s.config.MaxRetries > 0 && outcome.Retries > s.config.MaxRetries {
				return fmt.Errorf("%w: %d retries", ErrRetryBudgetExceeded, outcome.Retries)
			}
		}
		return nil
	})
	outcome.DurationMs = time.Since(outcome.StartedAt).Milliseconds()

	if err != nil {
		opLogger.Error(err)
		outcome.Status = model.OperationStatusFailed
		if errors.Is(err, ErrRetryBudgetExceeded) {
			outcome.Status = model.OperationStatusAborted
		}
		s.publish(model.EventEnrollFailed, sessionID, model.SeverityError, model.JSONObject{
			"operation_id": outcome.OperationID,
			"status":       outcome.Status,
			"error":        err.Error(),
		})
		return outcome, err
	}

	outcome.Result = step.Result.String()
	if step.Result == devicetypes.EnrollFail {
		outcome.Status = model.OperationStatusFailed
		opLogger.Error(errors.New("driver failed the enrollment"))
		s.publish(model.EventEnrollFailed, sessionID, model.SeverityWarning, model.JSONObject{
			"operation_id": outcome.OperationID,
			"status":       outcome.Status,
			"result":       outcome.Result,
		})
		return outcome, nil
	}

	if err := s.fctx.SavePrint(ctx, step.Print, finger); err != nil {
		opLogger.Error(err)
		return outcome, fmt.Errorf("failed to save print: %w", err)
	}

	record := printRecord(step.Print.DriverID(), step.Print.DevType(), finger)
	outcome.Status = model.OperationStatusSuccess
	outcome.Print = &record

	s.auditLogger.LogPrintSaved(record.Key, sessionID.String())
	opLogger.Success(zap.String("print", record.Key), zap.Int("retries", outcome.Retries))
	s.publish(model.EventEnrollCompleted, sessionID, model.SeverityInfo, model.JSONObject{
		"operation_id": outcome.OperationID,
		"print":        record,
	})
	return outcome, nil
}

// Verify loads the print stored for finger on the session's kind of device
// and checks one scan against it
func (s *OperationService) Verify(ctx context.Context, sessionID uuid.UUID, finger devicetypes.Finger) (*model.VerifyOutcome, error) {
	sess, err := s.devices.session(sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.config.VerifyTimeout)
	defer cancel()

	p, err := s.fctx.LoadPrint(ctx, sess.device, finger)
	if err != nil {
		return nil, err
	}

	outcome := &model.VerifyOutcome{
		OperationID: uuid.New(),
		SessionID:   sessionID,
		Print:       printRecord(p.DriverID(), p.DevType(), finger),
	}

	start := time.Now()
	result, err := sess.device.Verify(ctx, p)
	outcome.DurationMs = time.Since(start).Milliseconds()
	sess.logger.LogOperation(string(model.OperationTypeVerify), sessionID.String(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	outcome.Status = model.OperationStatusSuccess
	outcome.Result = result.String()
	outcome.Code = int(result)
	outcome.Match = result == devicetypes.VerifyMatch
	outcome.Retry = result.IsRetry()

	s.auditLogger.LogVerification(outcome.Print.Key, sessionID.String(), outcome.Result)
	s.publish(model.EventVerifyCompleted, sessionID, model.SeverityInfo, model.JSONObject{
		"operation_id": outcome.OperationID,
		"print":        outcome.Print.Key,
		"result":       outcome.Result,
	})
	return outcome, nil
}

// ListPrints lists the stored prints
func (s *OperationService) ListPrints(ctx context.Context) ([]model.PrintRecord, error) {
	prints, err := s.fctx.DiscoverPrints(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(prints, func(p fprint.DiscoveredPrint, _ int) model.PrintRecord {
		return printRecord(p.DriverID, p.DevType, p.Finger)
	}), nil
}

// DriverByName resolves a driver's short name to its id
func (s *OperationService) DriverByName(name string) (devicetypes.DriverID, error) {
	d, ok := s.fctx.Registry().ByName(name).Get()
	if !ok {
		return 0, fmt.Errorf("%w: %q", fprint.ErrUnknownDriver, name)
	}
	return d.Info().ID, nil
}

// DeletePrint removes a stored print
func (s *OperationService) DeletePrint(ctx context.Context, id devicetypes.DriverID, devtype devicetypes.DevType, finger devicetypes.Finger) error {
	p := fprint.DiscoveredPrint{DriverID: id, DevType: devtype, Finger: finger}
	if err := s.fctx.DeletePrint(ctx, p); err != nil {
		return err
	}

	key := printRecord(id, devtype, finger).Key
	s.auditLogger.LogPrintDeleted(key)
	s.publish(model.EventPrintDeleted, uuid.Nil, model.SeverityInfo, model.JSONObject{"print": key})
	return nil
}

func (s *OperationService) publish(eventType model.EventType, sessionID uuid.UUID, severity string, data model.JSONObject) {
	var id string
	if sessionID != uuid.Nil {
		id = sessionID.String()
	}
	s.publisher.Publish(model.NewEvent(eventType, id, severity, data))
}
