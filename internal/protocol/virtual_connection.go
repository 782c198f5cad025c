package protocol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

var imageExtensions = []string{".pgm", ".pnm", ".ppm", ".pbm", ".png", ".jpg", ".jpeg"}

// VirtualConnection emulates a frame sensor. Frames come from Feed first and
// then, if a directory is configured, from its image files in name order.
type VirtualConnection struct {
	config *VirtualConfig
	logger *zap.Logger

	mutex   sync.Mutex
	isOpen  bool
	closed  chan struct{}
	files   []*fpimg.Image
	next    int
	pending byte
	outbox  []byte
	queue   chan *fpimg.Image
	stats   statsTracker
}

// NewVirtualConnection creates a new virtual sensor connection
func NewVirtualConnection(config *VirtualConfig, logger *zap.Logger) *VirtualConnection {
	return &VirtualConnection{
		config: config,
		logger: logger.With(zap.String("protocol", "virtual"), zap.String("dir", config.Dir)),
		queue:  make(chan *fpimg.Image, 64),
	}
}

// ListImageFiles returns the image files of dir sorted by name
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		return filepath.Join(dir, e.Name()), !e.IsDir() && slices.Contains(imageExtensions, ext)
	})
	slices.Sort(names)
	return names, nil
}

// Open loads the frame directory
func (vc *VirtualConnection) Open(ctx context.Context) error {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	if vc.isOpen {
		return nil
	}

	vc.files = nil
	if vc.config.Dir != "" {
		paths, err := ListImageFiles(vc.config.Dir)
		if err != nil {
			return fmt.Errorf("%w: failed to read frame directory: %v", driver.ErrTransport, err)
		}
		for _, path := range paths {
			img, err := fpimg.LoadFile(path)
			if err != nil {
				vc.logger.Warn("Skipping unreadable frame", zap.String("file", path), zap.Error(err))
				continue
			}
			vc.files = append(vc.files, img)
		}
	}

	vc.closed = make(chan struct{})
	vc.next = 0
	vc.pending = 0
	vc.outbox = nil
	vc.isOpen = true
	vc.stats.setConnected(true)

	vc.logger.Info("Virtual sensor opened", zap.Int("frames", len(vc.files)))
	return nil
}

// Close unblocks any pending Read
func (vc *VirtualConnection) Close() error {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	if !vc.isOpen {
		return nil
	}

	close(vc.closed)
	vc.isOpen = false
	vc.stats.setConnected(false)
	return nil
}

// IsOpen returns whether the connection is open
func (vc *VirtualConnection) IsOpen() bool {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	return vc.isOpen
}

// Feed queues a frame for the next capture
func (vc *VirtualConnection) Feed(img *fpimg.Image) error {
	select {
	case vc.queue <- img:
		return nil
	default:
		return fmt.Errorf("%w: virtual frame queue full", driver.ErrTransport)
	}
}

// Write accepts one capture command
func (vc *VirtualConnection) Write(ctx context.Context, data []byte) error {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	if !vc.isOpen {
		return fmt.Errorf("%w: virtual sensor not open", driver.ErrTransport)
	}
	if len(data) != 1 || (data[0] != FrameCmdCapture && data[0] != FrameCmdCaptureNow) {
		return fmt.Errorf("%w: unsupported virtual sensor command % x", driver.ErrProtocol, data)
	}

	vc.pending = data[0]
	vc.outbox = nil
	vc.stats.record(0, len(data), 0, nil)
	return nil
}

// Read returns the response to the last command
func (vc *VirtualConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	vc.mutex.Lock()
	if !vc.isOpen {
		vc.mutex.Unlock()
		return nil, fmt.Errorf("%w: virtual sensor not open", driver.ErrTransport)
	}

	if len(vc.outbox) == 0 {
		if vc.pending == 0 {
			vc.mutex.Unlock()
			return nil, fmt.Errorf("%w: read without a pending command", driver.ErrProtocol)
		}

		cmd := vc.pending
		vc.pending = 0
		closed := vc.closed
		vc.mutex.Unlock()

		img, err := vc.nextFrame(ctx, cmd, closed)
		if err != nil {
			return nil, err
		}

		vc.mutex.Lock()
		vc.outbox = encodeFrame(img)
	}

	n := min(maxBytes, len(vc.outbox))
	out := make([]byte, n)
	copy(out, vc.outbox[:n])
	vc.outbox = vc.outbox[n:]
	vc.mutex.Unlock()

	vc.stats.record(n, 0, 0, nil)
	return out, nil
}

// nextFrame picks the frame for cmd. A nil image means no finger.
func (vc *VirtualConnection) nextFrame(ctx context.Context, cmd byte, closed <-chan struct{}) (*fpimg.Image, error) {
	select {
	case img := <-vc.queue:
		return img, nil
	default:
	}

	vc.mutex.Lock()
	if len(vc.files) > 0 {
		img := vc.files[vc.next%len(vc.files)]
		vc.next++
		vc.mutex.Unlock()
		return img, nil
	}
	vc.mutex.Unlock()

	if cmd == FrameCmdCaptureNow && !vc.config.Finger {
		return nil, nil
	}

	select {
	case img := <-vc.queue:
		return img, nil
	case <-closed:
		return nil, fmt.Errorf("%w: virtual sensor closed", driver.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func encodeFrame(img *fpimg.Image) []byte {
	if img == nil {
		return EncodeFrameHeader(FrameHeader{Status: FrameStatusNoFinger})
	}

	header := EncodeFrameHeader(FrameHeader{
		Status: FrameStatusOK,
		Width:  uint16(img.Width()),
		Height: uint16(img.Height()),
	})
	return append(header, img.Data()...)
}

// GetProtocolType returns the protocol type
func (vc *VirtualConnection) GetProtocolType() devicetypes.ConnectionType {
	return devicetypes.ConnectionTypeVirtual
}

// Stats returns a snapshot of the transfer counters
func (vc *VirtualConnection) Stats() ProtocolStats {
	return vc.stats.snapshot()
}

// Ping always succeeds on an open virtual sensor
func (vc *VirtualConnection) Ping(ctx context.Context) error {
	if !vc.IsOpen() {
		return fmt.Errorf("%w: virtual sensor not open", driver.ErrTransport)
	}
	return nil
}
