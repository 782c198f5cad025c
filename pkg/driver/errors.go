package driver

import "errors"

// Transport faults
var (
	ErrTransport    = errors.New("transport error")
	ErrDeviceClosed = errors.New("device closed")
)

// User-scan faults
var ErrNoFingerDetected = errors.New("no finger detected")

// Protocol faults
var (
	ErrIncompatibleTemplate = errors.New("template does not match device driver or devtype")
	ErrCorruptData          = errors.New("corrupt print data")
	ErrProtocol             = errors.New("driver protocol violation")
)

// Resource faults
var (
	ErrDeviceBusy         = errors.New("device busy")
	ErrImagingUnsupported = errors.New("device does not support imaging")
	ErrVerifyUnsupported  = errors.New("device does not support verification")
	ErrInvalidFinger      = errors.New("invalid finger")
	ErrPrintNotFound      = errors.New("print not found")
	ErrUnknownDriver      = errors.New("unknown driver")
)
