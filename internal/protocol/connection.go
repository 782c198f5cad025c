// internal/protocol/connection.go
package protocol

import "time"

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`

	// PollInterval bounds how long a blocked Read waits before rechecking
	// its context
	PollInterval time.Duration `json:"poll_interval"`
}

// USBConfig represents USB connection configuration
type USBConfig struct {
	VendorID    uint16        `json:"vendor_id"`
	ProductID   uint16        `json:"product_id"`
	Bus         int           `json:"bus"`
	Address     int           `json:"address"`
	InEndpoint  int           `json:"in_endpoint"`
	OutEndpoint int           `json:"out_endpoint"`
	Timeout     time.Duration `json:"timeout"`
}

// VirtualConfig represents a simulated sensor fed from image files or
// from frames pushed in memory
type VirtualConfig struct {
	Dir string `json:"dir"`

	// Finger controls whether unconditional frames report a finger when no
	// queued frame is available
	Finger bool `json:"finger"`
}
