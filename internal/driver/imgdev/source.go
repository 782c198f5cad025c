package imgdev

import (
	"context"
	"fmt"

	"fprint-service/internal/protocol"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fpimg"
)

// maxFramePixels bounds the raster a sensor may announce
const maxFramePixels = 2048 * 2048

// FrameSource yields raw frames from an image sensor
type FrameSource interface {
	// ReadFrame returns the next frame. Without unconditional it blocks
	// until the sensor reports a finger. A sensor that reports no finger
	// yields driver.ErrNoFingerDetected.
	ReadFrame(ctx context.Context, unconditional bool) (*fpimg.Image, error)

	// Size is the declared geometry. Zero values mean it varies per frame.
	Size() (width, height int)
}

// TransportSource speaks the raw frame exchange over a transport
type TransportSource struct {
	transport driver.Transport
	width     int
	height    int
	chunkSize int
	pending   []byte
}

// NewTransportSource creates a frame source. width and height are the
// declared geometry and are checked against every frame when non-zero.
func NewTransportSource(transport driver.Transport, width, height int) *TransportSource {
	return &TransportSource{
		transport: transport,
		width:     width,
		height:    height,
		chunkSize: 16 * 1024,
	}
}

// Size returns the declared geometry
func (s *TransportSource) Size() (int, int) {
	return s.width, s.height
}

// ReadFrame requests one frame and reads header and raster
func (s *TransportSource) ReadFrame(ctx context.Context, unconditional bool) (*fpimg.Image, error) {
	cmd := protocol.FrameCmdCapture
	if unconditional {
		cmd = protocol.FrameCmdCaptureNow
	}

	s.pending = nil
	if err := s.transport.Write(ctx, []byte{cmd}); err != nil {
		return nil, fmt.Errorf("capture command: %w", err)
	}

	raw, err := s.readFull(ctx, protocol.FrameHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("frame header: %w", err)
	}

	header, err := protocol.DecodeFrameHeader(raw)
	if err != nil {
		return nil, err
	}

	switch header.Status {
	case protocol.FrameStatusOK:
	case protocol.FrameStatusNoFinger:
		return nil, driver.ErrNoFingerDetected
	default:
		return nil, fmt.Errorf("%w: frame status 0x%02x", driver.ErrProtocol, header.Status)
	}

	if header.PixelCount() == 0 || header.PixelCount() > maxFramePixels {
		return nil, fmt.Errorf("%w: frame size %dx%d", driver.ErrProtocol, header.Width, header.Height)
	}
	if (s.width != 0 && int(header.Width) != s.width) || (s.height != 0 && int(header.Height) != s.height) {
		return nil, fmt.Errorf("%w: frame size %dx%d, sensor is %dx%d",
			driver.ErrProtocol, header.Width, header.Height, s.width, s.height)
	}

	pixels, err := s.readFull(ctx, header.PixelCount())
	if err != nil {
		return nil, fmt.Errorf("frame raster: %w", err)
	}

	return fpimg.New(int(header.Width), int(header.Height), pixels, 0)
}

// readFull returns exactly n bytes. Transfers are read in whole chunks and
// any surplus is kept for the next call.
func (s *TransportSource) readFull(ctx context.Context, n int) ([]byte, error) {
	for len(s.pending) < n {
		chunk, err := s.transport.Read(ctx, s.chunkSize)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("%w: empty read", driver.ErrTransport)
		}
		s.pending = append(s.pending, chunk...)
	}

	out := s.pending[:n:n]
	s.pending = s.pending[n:]
	return out, nil
}
