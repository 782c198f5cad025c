package fprint

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
)

// EnrollPhase is the position of a device in its enrollment
type EnrollPhase int

const (
	EnrollIdle EnrollPhase = iota
	EnrollAwaitingScan
	EnrollExtracting
	EnrollStageComplete
	EnrollFailed
	EnrollCompleted
)

func (p EnrollPhase) String() string {
	switch p {
	case EnrollIdle:
		return "idle"
	case EnrollAwaitingScan:
		return "awaiting-scan"
	case EnrollExtracting:
		return "extracting"
	case EnrollStageComplete:
		return "stage-complete"
	case EnrollFailed:
		return "failed"
	case EnrollCompleted:
		return "complete"
	default:
		return fmt.Sprintf("EnrollPhase(%d)", int(p))
	}
}

// EnrollStep reports one scan of an enrollment
type EnrollStep struct {
	Result devicetypes.EnrollResult `json:"result"`

	// Accepted is the number of stages accepted after this scan
	Accepted int `json:"accepted"`
	Stages   int `json:"stages"`

	// Print is set when Result is EnrollComplete
	Print *PrintData `json:"-"`
}

// Done reports whether the enrollment ended with this step
func (s *EnrollStep) Done() bool {
	return s.Result == devicetypes.EnrollComplete || s.Result == devicetypes.EnrollFail
}

// EnrollObserver sees every step of Enroll. Returning an error aborts the
// enrollment.
type EnrollObserver func(step *EnrollStep) error

// EnrollPhase returns where the device is in its enrollment
func (d *Device) EnrollPhase() EnrollPhase {
	return EnrollPhase(d.phase.Load())
}

func (d *Device) setPhase(p EnrollPhase) {
	d.phase.Store(int32(p))
}

// EnrollStage waits for one scan and runs it through the driver's extractor.
// A retry result keeps the stages accepted so far; fail discards them. After
// a fail or a completion the next call starts a new enrollment.
func (d *Device) EnrollStage(ctx context.Context) (*EnrollStep, error) {
	release, err := d.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	return d.enrollStage(ctx)
}

func (d *Device) enrollStage(ctx context.Context) (*EnrollStep, error) {
	if phase := d.EnrollPhase(); phase == EnrollFailed || phase == EnrollCompleted {
		d.resetEnroll()
	}

	stages := d.session.EnrollStages()
	opCtx, done := d.bind(ctx)
	defer done()

	d.setPhase(EnrollAwaitingScan)
	scan, err := d.session.Capture(opCtx, false)
	if errors.Is(err, ErrNoFingerDetected) {
		return d.step(devicetypes.EnrollRetryGeneral, stages), nil
	}
	if err != nil {
		d.resetEnroll()
		return nil, d.fault(err)
	}

	d.setPhase(EnrollExtracting)
	ext, err := d.session.ExtractEnroll(opCtx, scan, slices.Clone(d.accepted))
	if errors.Is(err, ErrNoFingerDetected) {
		d.setPhase(EnrollAwaitingScan)
		return d.step(devicetypes.EnrollRetryGeneral, stages), nil
	}
	if err != nil {
		d.resetEnroll()
		return nil, d.fault(err)
	}

	switch {
	case ext.Result == devicetypes.EnrollStagePass:
		if len(ext.Feature) == 0 || len(d.accepted)+1 >= stages {
			d.resetEnroll()
			return nil, fmt.Errorf("%w: stage %d of %d passed without completing", ErrProtocol, len(d.accepted)+1, stages)
		}
		d.accepted = append(d.accepted, ext.Feature)
		d.setPhase(EnrollStageComplete)

	case ext.Result.IsRetry():
		d.setPhase(EnrollAwaitingScan)

	case ext.Result == devicetypes.EnrollFail:
		d.accepted = nil
		d.setPhase(EnrollFailed)

	case ext.Result == devicetypes.EnrollComplete:
		if len(d.accepted)+1 != stages {
			n := len(d.accepted) + 1
			d.resetEnroll()
			return nil, fmt.Errorf("%w: enrollment completed after %d of %d stages", ErrProtocol, n, stages)
		}
		p, err := NewPrintData(d.DriverID(), d.devtype, ext.Template)
		if err != nil {
			d.resetEnroll()
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		d.accepted = nil
		d.setPhase(EnrollCompleted)

		step := d.step(ext.Result, stages)
		step.Accepted = stages
		step.Print = p
		return step, nil

	default:
		d.resetEnroll()
		return nil, fmt.Errorf("%w: unexpected enroll result %s", ErrProtocol, ext.Result)
	}

	return d.step(ext.Result, stages), nil
}

func (d *Device) step(result devicetypes.EnrollResult, stages int) *EnrollStep {
	d.logger.Debug("Enroll step",
		zap.Stringer("result", result),
		zap.Int("accepted", len(d.accepted)),
		zap.Int("stages", stages),
	)
	return &EnrollStep{Result: result, Accepted: len(d.accepted), Stages: stages}
}

func (d *Device) resetEnroll() {
	d.accepted = nil
	d.setPhase(EnrollIdle)
}

// Enroll runs stages until the enrollment completes or fails. The last step
// is returned; its Print is set on completion. There is no retry limit here;
// an observer that wants one returns an error, which abandons the
// enrollment.
func (d *Device) Enroll(ctx context.Context, observer EnrollObserver) (*EnrollStep, error) {
	release, err := d.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	d.resetEnroll()
	for {
		step, err := d.enrollStage(ctx)
		if err != nil {
			return nil, err
		}

		if observer != nil {
			if err := observer(step); err != nil {
				d.resetEnroll()
				return step, fmt.Errorf("enrollment aborted: %w", err)
			}
		}

		if step.Done() {
			return step, nil
		}
	}
}
