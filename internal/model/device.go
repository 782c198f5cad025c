// internal/model/device.go
package model

import (
	"time"

	"github.com/google/uuid"

	"fprint-service/internal/protocol"
)

// DeviceStatus tells whether a discovered sensor has an open session
type DeviceStatus string

const (
	DeviceStatusAvailable DeviceStatus = "AVAILABLE"
	DeviceStatusOpen      DeviceStatus = "OPEN"
)

// JSONObject is a free-form JSON object
type JSONObject map[string]interface{}

// DriverRecord describes a registered driver
type DriverRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FullName       string   `json:"full_name"`
	ScanType       string   `json:"scan_type"`
	ConnectionType string   `json:"connection_type"`
	DevTypes       []string `json:"devtypes"`
	USBIDs         []string `json:"usb_ids,omitempty"`
	Imaging        bool     `json:"imaging"`
}

// DeviceRecord is one entry of the last discovery run. Index is the
// position used by the open endpoint.
type DeviceRecord struct {
	Index          int          `json:"index"`
	Key            string       `json:"key"`
	ConnectionType string       `json:"connection_type"`
	ConnectionInfo JSONObject   `json:"connection_info,omitempty"`
	DriverID       string       `json:"driver_id"`
	Driver         string       `json:"driver"`
	DevType        string       `json:"devtype"`
	Description    string       `json:"description,omitempty"`
	SerialNumber   string       `json:"serial_number,omitempty"`
	Location       string       `json:"location,omitempty"`
	Status         DeviceStatus `json:"status"`
	SessionID      *uuid.UUID   `json:"session_id,omitempty"`
}

// Session is an open device as the API reports it
type Session struct {
	ID           uuid.UUID `json:"id"`
	DeviceKey    string    `json:"device_key"`
	Driver       string    `json:"driver"`
	DriverID     string    `json:"driver_id"`
	DevType      string    `json:"devtype"`
	EnrollStages int       `json:"enroll_stages"`
	Imaging      bool      `json:"imaging"`
	Verify       bool      `json:"verify"`

	// ImageHeight is absent for swipe sensors
	ImageWidth  *int `json:"image_width,omitempty"`
	ImageHeight *int `json:"image_height,omitempty"`

	EnrollPhase string                  `json:"enroll_phase"`
	Transport   *protocol.ProtocolStats `json:"transport,omitempty"`
	OpenedAt    time.Time               `json:"opened_at"`
}

// PrintRecord names a stored print
type PrintRecord struct {
	Key        string `json:"key"`
	DriverID   string `json:"driver_id"`
	DevType    string `json:"devtype"`
	Finger     int    `json:"finger"`
	FingerName string `json:"finger_name"`
}
