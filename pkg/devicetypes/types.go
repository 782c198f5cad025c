// pkg/devicetypes/types.go
package devicetypes

import "fmt"

// Shared fingerprint device definitions used by drivers, the core and the service layer

// DriverID uniquely identifies a driver in the registry
type DriverID uint16

// DevType distinguishes hardware variants served by the same driver
type DevType uint16

func (id DriverID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

func (t DevType) String() string {
	return fmt.Sprintf("0x%04x", uint16(t))
}

// ConnectionType represents how a sensor is attached
type ConnectionType string

const (
	ConnectionTypeUSB     ConnectionType = "USB"
	ConnectionTypeSerial  ConnectionType = "SERIAL"
	ConnectionTypeVirtual ConnectionType = "VIRTUAL"
)

// ScanType is the way a finger is presented to the sensor
type ScanType int

const (
	ScanTypePress ScanType = iota
	ScanTypeSwipe
)

func (s ScanType) String() string {
	switch s {
	case ScanTypePress:
		return "press"
	case ScanTypeSwipe:
		return "swipe"
	default:
		return fmt.Sprintf("ScanType(%d)", int(s))
	}
}

// Finger is one of the ten digits. The numeric values are part of the
// on-disk print layout and must not change.
type Finger int

const (
	LeftThumb Finger = iota + 1
	LeftIndex
	LeftMiddle
	LeftRing
	LeftLittle
	RightThumb
	RightIndex
	RightMiddle
	RightRing
	RightLittle
)

var fingerNames = map[Finger]string{
	LeftThumb:   "left-thumb",
	LeftIndex:   "left-index",
	LeftMiddle:  "left-middle",
	LeftRing:    "left-ring",
	LeftLittle:  "left-little",
	RightThumb:  "right-thumb",
	RightIndex:  "right-index",
	RightMiddle: "right-middle",
	RightRing:   "right-ring",
	RightLittle: "right-little",
}

// Valid reports whether f is one of the ten finger codes
func (f Finger) Valid() bool {
	return f >= LeftThumb && f <= RightLittle
}

func (f Finger) String() string {
	if name, ok := fingerNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Finger(%d)", int(f))
}

// ParseFinger accepts either a finger code ("7") or a name ("right-index")
func ParseFinger(s string) (Finger, error) {
	for f, name := range fingerNames {
		if name == s {
			return f, nil
		}
	}

	var code int
	if _, err := fmt.Sscanf(s, "%d", &code); err == nil && Finger(code).Valid() {
		return Finger(code), nil
	}

	return 0, fmt.Errorf("invalid finger: %q", s)
}

// EnrollResult is the outcome of one enrollment stage
type EnrollResult int

const (
	EnrollComplete          EnrollResult = 1
	EnrollFail              EnrollResult = 2
	EnrollStagePass         EnrollResult = 3
	EnrollRetryGeneral      EnrollResult = 100
	EnrollRetryTooShort     EnrollResult = 101
	EnrollRetryCenterFinger EnrollResult = 102
	EnrollRetryRemoveFinger EnrollResult = 103
)

// IsRetry reports whether the result asks the user to repeat the same stage
func (r EnrollResult) IsRetry() bool {
	return r >= EnrollRetryGeneral && r <= EnrollRetryRemoveFinger
}

func (r EnrollResult) String() string {
	switch r {
	case EnrollComplete:
		return "complete"
	case EnrollFail:
		return "fail"
	case EnrollStagePass:
		return "stage-pass"
	case EnrollRetryGeneral:
		return "retry"
	case EnrollRetryTooShort:
		return "retry-too-short"
	case EnrollRetryCenterFinger:
		return "retry-center-finger"
	case EnrollRetryRemoveFinger:
		return "retry-remove-finger"
	default:
		return fmt.Sprintf("EnrollResult(%d)", int(r))
	}
}

// VerifyResult is the outcome of a single verification attempt
type VerifyResult int

const (
	VerifyNoMatch           VerifyResult = 0
	VerifyMatch             VerifyResult = 1
	VerifyRetryGeneral      VerifyResult = VerifyResult(EnrollRetryGeneral)
	VerifyRetryTooShort     VerifyResult = VerifyResult(EnrollRetryTooShort)
	VerifyRetryCenterFinger VerifyResult = VerifyResult(EnrollRetryCenterFinger)
	VerifyRetryRemoveFinger VerifyResult = VerifyResult(EnrollRetryRemoveFinger)
)

// IsRetry reports whether the scan was unusable, as opposed to a definite match decision
func (r VerifyResult) IsRetry() bool {
	return r >= VerifyRetryGeneral && r <= VerifyRetryRemoveFinger
}

func (r VerifyResult) String() string {
	switch r {
	case VerifyNoMatch:
		return "no-match"
	case VerifyMatch:
		return "match"
	default:
		if r.IsRetry() {
			return EnrollResult(r).String()
		}
		return fmt.Sprintf("VerifyResult(%d)", int(r))
	}
}

// QualityResult is the retry signal a driver reports for a poor scan.
// The zero value means the scan is usable.
type QualityResult int

const (
	QualityOK QualityResult = iota
	QualityRetryGeneral
	QualityRetryTooShort
	QualityRetryCenterFinger
	QualityRetryRemoveFinger
)

// EnrollResult converts the quality signal into the enrollment result code
func (q QualityResult) EnrollResult() EnrollResult {
	switch q {
	case QualityRetryTooShort:
		return EnrollRetryTooShort
	case QualityRetryCenterFinger:
		return EnrollRetryCenterFinger
	case QualityRetryRemoveFinger:
		return EnrollRetryRemoveFinger
	default:
		return EnrollRetryGeneral
	}
}

// VerifyResult converts the quality signal into the verification result code
func (q QualityResult) VerifyResult() VerifyResult {
	return VerifyResult(q.EnrollResult())
}
