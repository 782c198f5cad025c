package fprint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

func enrollDevice(t *testing.T, session *scriptSession) *Device {
	t.Helper()
	return newFixture(t, newScriptDriver(7, session)).open(t)
}

func TestEnrollStages(t *testing.T) {
	ctx := context.Background()
	session := &scriptSession{
		stages:   3,
		results:  []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollStagePass, devicetypes.EnrollComplete},
		template: []byte{0xAB, 0xCD},
	}
	dev := enrollDevice(t, session)
	assert.Equal(t, EnrollIdle, dev.EnrollPhase())

	step, err := dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollStagePass, step.Result)
	assert.Equal(t, 1, step.Accepted)
	assert.Equal(t, 3, step.Stages)
	assert.False(t, step.Done())
	assert.Equal(t, EnrollStageComplete, dev.EnrollPhase())

	step, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, step.Accepted)

	step, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	require.True(t, step.Done())
	assert.Equal(t, devicetypes.EnrollComplete, step.Result)
	assert.Equal(t, 3, step.Accepted)
	require.NotNil(t, step.Print)
	assert.Equal(t, []byte{0x00, 0x07, 0x00, 0x01, 0xAB, 0xCD}, step.Print.Bytes())
	assert.Equal(t, EnrollCompleted, dev.EnrollPhase())

	assert.Empty(t, session.seen[0])
	assert.Equal(t, []driver.Feature{{1}}, session.seen[1])
	assert.Equal(t, []driver.Feature{{1}, {2}}, session.seen[2])
}

func TestEnrollRetryKeepsAcceptedStages(t *testing.T) {
	ctx := context.Background()
	session := &scriptSession{
		stages: 3,
		results: []devicetypes.EnrollResult{
			devicetypes.EnrollStagePass,
			devicetypes.EnrollRetryTooShort,
			devicetypes.EnrollStagePass,
			devicetypes.EnrollComplete,
		},
		template: []byte{0x01},
	}
	dev := enrollDevice(t, session)

	_, err := dev.EnrollStage(ctx)
	require.NoError(t, err)

	step, err := dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollRetryTooShort, step.Result)
	assert.Equal(t, 1, step.Accepted)
	assert.Equal(t, EnrollAwaitingScan, dev.EnrollPhase())

	_, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	step, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollComplete, step.Result)

	// the retried scan (capture 2) never became a stage
	assert.Equal(t, []driver.Feature{{1}}, session.seen[2])
	assert.Equal(t, []driver.Feature{{1}, {3}}, session.seen[3])
}

func TestEnrollFailDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	session := &scriptSession{
		stages: 2,
		results: []devicetypes.EnrollResult{
			devicetypes.EnrollStagePass,
			devicetypes.EnrollFail,
			devicetypes.EnrollStagePass,
			devicetypes.EnrollComplete,
		},
		template: []byte{0x01},
	}
	dev := enrollDevice(t, session)

	_, err := dev.EnrollStage(ctx)
	require.NoError(t, err)

	step, err := dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollFail, step.Result)
	assert.True(t, step.Done())
	assert.Zero(t, step.Accepted)
	assert.Equal(t, EnrollFailed, dev.EnrollPhase())

	step, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Accepted)
	assert.Empty(t, session.seen[2])

	step, err = dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollComplete, step.Result)
	assert.Equal(t, []driver.Feature{{3}}, session.seen[3])
}

func TestEnrollNoFingerIsRetry(t *testing.T) {
	session := &scriptSession{
		stages:   2,
		captures: []error{driver.ErrNoFingerDetected},
		results:  []devicetypes.EnrollResult{devicetypes.EnrollStagePass},
	}
	dev := enrollDevice(t, session)

	step, err := dev.EnrollStage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollRetryGeneral, step.Result)
	assert.Zero(t, step.Accepted)
	assert.Empty(t, session.seen)
}

func TestEnrollProtocolViolations(t *testing.T) {
	tests := []struct {
		name     string
		stages   int
		results  []devicetypes.EnrollResult
		template []byte
		calls    int
	}{
		{
			name:     "complete too early",
			stages:   3,
			results:  []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollComplete},
			template: []byte{0x01},
			calls:    2,
		},
		{
			name:    "pass on the last stage",
			stages:  2,
			results: []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollStagePass},
			calls:   2,
		},
		{
			name:    "complete without template",
			stages:  1,
			results: []devicetypes.EnrollResult{devicetypes.EnrollComplete},
			calls:   1,
		},
		{
			name:    "unknown result",
			stages:  2,
			results: []devicetypes.EnrollResult{devicetypes.EnrollResult(42)},
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := enrollDevice(t, &scriptSession{stages: tt.stages, results: tt.results, template: tt.template})

			var err error
			for i := 0; i < tt.calls; i++ {
				_, err = dev.EnrollStage(context.Background())
			}
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Equal(t, EnrollIdle, dev.EnrollPhase())
		})
	}
}

func TestEnrollCaptureErrorResets(t *testing.T) {
	ctx := context.Background()
	session := &scriptSession{
		stages:   3,
		captures: []error{nil, driver.ErrTransport},
		results:  []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollStagePass},
	}
	dev := enrollDevice(t, session)

	_, err := dev.EnrollStage(ctx)
	require.NoError(t, err)

	_, err = dev.EnrollStage(ctx)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, EnrollIdle, dev.EnrollPhase())

	step, err := dev.EnrollStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Accepted)
}

func TestEnrollWithObserver(t *testing.T) {
	session := &scriptSession{
		stages: 2,
		results: []devicetypes.EnrollResult{
			devicetypes.EnrollStagePass,
			devicetypes.EnrollRetryCenterFinger,
			devicetypes.EnrollComplete,
		},
		template: []byte{0x09},
	}
	dev := enrollDevice(t, session)

	var seen []devicetypes.EnrollResult
	step, err := dev.Enroll(context.Background(), func(s *EnrollStep) error {
		seen = append(seen, s.Result)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []devicetypes.EnrollResult{
		devicetypes.EnrollStagePass,
		devicetypes.EnrollRetryCenterFinger,
		devicetypes.EnrollComplete,
	}, seen)
	assert.Equal(t, []byte{0x09}, step.Print.Payload())
}

func TestEnrollEndsOnFail(t *testing.T) {
	session := &scriptSession{
		stages:  3,
		results: []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollFail},
	}
	dev := enrollDevice(t, session)

	step, err := dev.Enroll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollFail, step.Result)
	assert.Nil(t, step.Print)
}

func TestEnrollObserverAborts(t *testing.T) {
	stop := errors.New("user gave up")
	session := &scriptSession{
		stages:  3,
		results: []devicetypes.EnrollResult{devicetypes.EnrollStagePass, devicetypes.EnrollStagePass},
	}
	dev := enrollDevice(t, session)

	step, err := dev.Enroll(context.Background(), func(*EnrollStep) error { return stop })
	assert.ErrorIs(t, err, stop)
	require.NotNil(t, step)
	assert.Equal(t, 1, step.Accepted)
	assert.Equal(t, EnrollIdle, dev.EnrollPhase())
	assert.Equal(t, 1, session.captureTotal())
}
