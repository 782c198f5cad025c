package r30x

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fprint-service/pkg/driver"
)

// Packet identifiers
const (
	PIDCommand byte = 0x01
	PIDData    byte = 0x02
	PIDAck     byte = 0x07
	PIDEndData byte = 0x08
)

// Instruction codes
const (
	CmdGenImg   byte = 0x01
	CmdImg2Tz   byte = 0x02
	CmdMatch    byte = 0x03
	CmdRegModel byte = 0x05
	CmdUpChar   byte = 0x08
	CmdDownChar byte = 0x09
	CmdUpImage  byte = 0x0A
	CmdVfyPwd   byte = 0x13
)

// Confirmation codes
const (
	AckOK            byte = 0x00
	AckPacketError   byte = 0x01
	AckNoFinger      byte = 0x02
	AckEnrollFailed  byte = 0x03
	AckDisorderly    byte = 0x06
	AckTooFewPoints  byte = 0x07
	AckNoMatch       byte = 0x08
	AckCombineFailed byte = 0x0A
	AckUploadFailed  byte = 0x0D
	AckBadPackage    byte = 0x0E
	AckUpImageFailed byte = 0x0F
	AckWrongPassword byte = 0x13
	AckInvalidImage  byte = 0x15
)

const (
	startCode      uint16 = 0xEF01
	headerSize            = 9
	checksumSize          = 2
	DefaultAddress uint32 = 0xFFFFFFFF
)

// errIncomplete means more bytes are needed to decode a packet
var errIncomplete = errors.New("incomplete packet")

// Packet is one frame of the module protocol:
//
//	EF01 | address(4) | pid(1) | length(2) | payload | checksum(2)
//
// length counts the payload and the checksum. The checksum is the 16-bit sum
// of pid, length and payload bytes.
type Packet struct {
	Address uint32
	PID     byte
	Payload []byte
}

// Marshal encodes the packet
func (p Packet) Marshal() []byte {
	buf := make([]byte, headerSize, headerSize+len(p.Payload)+checksumSize)
	binary.BigEndian.PutUint16(buf[0:2], startCode)
	binary.BigEndian.PutUint32(buf[2:6], p.Address)
	buf[6] = p.PID
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(p.Payload)+checksumSize))
	buf = append(buf, p.Payload...)
	return binary.BigEndian.AppendUint16(buf, checksum(buf[6:]))
}

func checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// ParsePacket decodes the packet at the start of b and returns the number of
// bytes it occupied. errIncomplete asks for more input.
func ParsePacket(b []byte) (Packet, int, error) {
	if len(b) < headerSize {
		return Packet{}, 0, errIncomplete
	}
	if binary.BigEndian.Uint16(b[0:2]) != startCode {
		return Packet{}, 0, fmt.Errorf("%w: bad start code %02x%02x", driver.ErrProtocol, b[0], b[1])
	}

	length := int(binary.BigEndian.Uint16(b[7:9]))
	if length < checksumSize {
		return Packet{}, 0, fmt.Errorf("%w: packet length %d", driver.ErrProtocol, length)
	}
	total := headerSize + length
	if len(b) < total {
		return Packet{}, 0, errIncomplete
	}

	body := b[6 : total-checksumSize]
	want := binary.BigEndian.Uint16(b[total-checksumSize : total])
	if got := checksum(body); got != want {
		return Packet{}, 0, fmt.Errorf("%w: checksum %04x, want %04x", driver.ErrProtocol, got, want)
	}

	return Packet{
		Address: binary.BigEndian.Uint32(b[2:6]),
		PID:     b[6],
		Payload: append([]byte(nil), b[headerSize:total-checksumSize]...),
	}, total, nil
}
