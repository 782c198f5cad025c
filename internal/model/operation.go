// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeEnroll  OperationType = "ENROLL"
	OperationTypeVerify  OperationType = "VERIFY"
	OperationTypeCapture OperationType = "CAPTURE"
)

// OperationStatus represents how an operation ended
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
	OperationStatusAborted OperationStatus = "ABORTED"
)

// EnrollStepRecord is one scan of an enrollment
type EnrollStepRecord struct {
	Result   string `json:"result"`
	Code     int    `json:"code"`
	Accepted int    `json:"accepted"`
	Stages   int    `json:"stages"`
}

// EnrollOutcome is the result of an enrollment request
type EnrollOutcome struct {
	OperationID uuid.UUID          `json:"operation_id"`
	SessionID   uuid.UUID          `json:"session_id"`
	Status      OperationStatus    `json:"status"`
	Result      string             `json:"result"`
	Steps       []EnrollStepRecord `json:"steps"`
	Retries     int                `json:"retries"`
	Print       *PrintRecord       `json:"print,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	DurationMs  int64              `json:"duration_ms"`
}

// VerifyOutcome is the result of a verification request
type VerifyOutcome struct {
	OperationID uuid.UUID       `json:"operation_id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Status      OperationStatus `json:"status"`
	Print       PrintRecord     `json:"print"`
	Result      string          `json:"result"`
	Code        int             `json:"code"`
	Match       bool            `json:"match"`
	Retry       bool            `json:"retry"`
	DurationMs  int64           `json:"duration_ms"`
}
