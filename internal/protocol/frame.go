package protocol

import (
	"encoding/binary"
	"fmt"

	"fprint-service/pkg/driver"
)

// Raw frame exchange used by bulk-transfer image sensors and by the virtual
// sensor. The host writes one command byte; the device answers with an
// 8 byte header followed by width*height gray pixels.
//
//	'F' 'P' | status | reserved | width (BE16) | height (BE16)
const (
	FrameCmdCapture     byte = 0x01
	FrameCmdCaptureNow  byte = 0x02
	FrameStatusOK       byte = 0x00
	FrameStatusNoFinger byte = 0x01
	FrameHeaderSize          = 8
)

// FrameHeader precedes every raster sent by a frame sensor
type FrameHeader struct {
	Status byte
	Width  uint16
	Height uint16
}

// PixelCount is the number of raster bytes that follow the header
func (h FrameHeader) PixelCount() int {
	return int(h.Width) * int(h.Height)
}

// EncodeFrameHeader serializes h
func EncodeFrameHeader(h FrameHeader) []byte {
	buf := make([]byte, FrameHeaderSize)
	buf[0], buf[1] = 'F', 'P'
	buf[2] = h.Status
	binary.BigEndian.PutUint16(buf[4:6], h.Width)
	binary.BigEndian.PutUint16(buf[6:8], h.Height)
	return buf
}

// DecodeFrameHeader parses the first FrameHeaderSize bytes of b
func DecodeFrameHeader(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderSize {
		return FrameHeader{}, fmt.Errorf("%w: short frame header (%d bytes)", driver.ErrProtocol, len(b))
	}
	if b[0] != 'F' || b[1] != 'P' {
		return FrameHeader{}, fmt.Errorf("%w: bad frame magic %02x%02x", driver.ErrProtocol, b[0], b[1])
	}

	return FrameHeader{
		Status: b[2],
		Width:  binary.BigEndian.Uint16(b[4:6]),
		Height: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}
