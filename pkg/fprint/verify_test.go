package fprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

func verifyDevice(t *testing.T, id devicetypes.DriverID, session *verifyingSession) *Device {
	t.Helper()
	if session.scriptSession == nil {
		session.scriptSession = &scriptSession{stages: 1}
	}
	return newFixture(t, newScriptDriver(id, session)).open(t)
}

func TestVerifyResults(t *testing.T) {
	tests := []struct {
		name    string
		session *verifyingSession
		want    devicetypes.VerifyResult
	}{
		{name: "match", session: &verifyingSession{match: true}, want: devicetypes.VerifyMatch},
		{name: "no match", session: &verifyingSession{}, want: devicetypes.VerifyNoMatch},
		{
			name:    "poor scan",
			session: &verifyingSession{quality: devicetypes.QualityRetryCenterFinger},
			want:    devicetypes.VerifyRetryCenterFinger,
		},
		{
			name: "no finger",
			session: &verifyingSession{scriptSession: &scriptSession{
				captures: []error{driver.ErrNoFingerDetected},
			}},
			want: devicetypes.VerifyRetryGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := verifyDevice(t, 7, tt.session)
			p, err := NewPrintData(7, 1, []byte{0x10, 0x20})
			require.NoError(t, err)

			result, err := dev.Verify(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestVerifyPassesPayload(t *testing.T) {
	session := &verifyingSession{match: true}
	dev := verifyDevice(t, 7, session)

	p, err := NewPrintData(7, 1, []byte{0x10, 0x20})
	require.NoError(t, err)

	_, err = dev.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20}, session.compared)
}

func TestVerifyIncompatiblePrintNeverScans(t *testing.T) {
	session := &verifyingSession{match: true}
	dev := verifyDevice(t, 9, session)

	p, err := NewPrintData(7, 1, []byte{0x01})
	require.NoError(t, err)

	_, err = dev.Verify(context.Background(), p)
	assert.ErrorIs(t, err, ErrIncompatibleTemplate)

	otherType, err := NewPrintData(9, 2, []byte{0x01})
	require.NoError(t, err)
	_, err = dev.Verify(context.Background(), otherType)
	assert.ErrorIs(t, err, ErrIncompatibleTemplate)

	_, err = dev.Verify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrIncompatibleTemplate)

	assert.Zero(t, session.captureTotal())
}

func TestVerifyCorruptTemplate(t *testing.T) {
	dev := verifyDevice(t, 7, &verifyingSession{compareErr: driver.ErrCorruptData})
	p, err := NewPrintData(7, 1, []byte{0x01})
	require.NoError(t, err)

	_, err = dev.Verify(context.Background(), p)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestVerifyUnsupported(t *testing.T) {
	dev := enrollDevice(t, &scriptSession{stages: 1})
	p, err := NewPrintData(7, 1, []byte{0x01})
	require.NoError(t, err)

	_, err = dev.Verify(context.Background(), p)
	assert.ErrorIs(t, err, ErrVerifyUnsupported)
}
