package fprint

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// Verify scans a finger once and compares it with p. A print enrolled on a
// different driver or devtype is rejected before the sensor is touched.
func (d *Device) Verify(ctx context.Context, p *PrintData) (devicetypes.VerifyResult, error) {
	if !d.SupportsPrintData(p) {
		if p == nil {
			return devicetypes.VerifyNoMatch, fmt.Errorf("%w: no print", ErrIncompatibleTemplate)
		}
		return devicetypes.VerifyNoMatch, fmt.Errorf("%w: print is for driver %s devtype %s, device is driver %s devtype %s",
			ErrIncompatibleTemplate, p.DriverID(), p.DevType(), d.DriverID(), d.devtype)
	}

	verifier, ok := d.session.(driver.Verifier)
	if !ok {
		return devicetypes.VerifyNoMatch, ErrVerifyUnsupported
	}

	release, err := d.begin()
	if err != nil {
		return devicetypes.VerifyNoMatch, err
	}
	defer release()

	opCtx, done := d.bind(ctx)
	defer done()

	scan, err := d.session.Capture(opCtx, false)
	if errors.Is(err, ErrNoFingerDetected) {
		return devicetypes.VerifyRetryGeneral, nil
	}
	if err != nil {
		return devicetypes.VerifyNoMatch, d.fault(err)
	}

	probe, quality, err := verifier.ExtractVerify(opCtx, scan)
	if errors.Is(err, ErrNoFingerDetected) {
		return devicetypes.VerifyRetryGeneral, nil
	}
	if err != nil {
		return devicetypes.VerifyNoMatch, d.fault(err)
	}
	if quality != devicetypes.QualityOK {
		d.logger.Debug("Verify scan rejected", zap.Stringer("result", quality.VerifyResult()))
		return quality.VerifyResult(), nil
	}

	matched, err := verifier.Compare(opCtx, probe, p.Payload())
	if err != nil {
		return devicetypes.VerifyNoMatch, d.fault(err)
	}

	result := devicetypes.VerifyNoMatch
	if matched {
		result = devicetypes.VerifyMatch
	}
	d.logger.Debug("Verify finished", zap.Stringer("result", result))
	return result, nil
}
