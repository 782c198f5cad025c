// internal/protocol/protocol.go
package protocol

import (
	"context"
	"sync"
	"time"

	"fprint-service/pkg/devicetypes"
)

// DeviceProtocol represents a communication channel to a sensor. It satisfies
// driver.Transport so drivers never see the concrete transport.
type DeviceProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Protocol information
	GetProtocolType() devicetypes.ConnectionType
	Stats() ProtocolStats

	// Health and diagnostics
	Ping(ctx context.Context) error
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsTracker guards ProtocolStats, which reads and writes update while
// holding only the connection's read lock
type statsTracker struct {
	mu    sync.Mutex
	stats ProtocolStats
}

// record updates counters after one transfer
func (t *statsTracker) record(read, written int, latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.stats
	if err != nil {
		s.ErrorCount++
		return
	}

	s.BytesRead += int64(read)
	s.BytesWritten += int64(written)
	s.OperationCount++
	s.LastActivity = time.Now()

	if s.AverageLatency == 0 {
		s.AverageLatency = latency
	} else {
		s.AverageLatency = (s.AverageLatency + latency) / 2
	}
}

func (t *statsTracker) setConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.IsConnected = connected
	if connected {
		t.stats.LastActivity = time.Now()
	}
}

func (t *statsTracker) snapshot() ProtocolStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
