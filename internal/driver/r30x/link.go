package r30x

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"fprint-service/pkg/driver"
)

// maxTransfer bounds the data phase of UpChar and UpImage
const maxTransfer = 64 * 1024

// link exchanges packets with one module
type link struct {
	transport  driver.Transport
	address    uint32
	packetSize int
	pending    []byte
}

func (l *link) send(ctx context.Context, pid byte, payload []byte) error {
	p := Packet{Address: l.address, PID: pid, Payload: payload}
	return l.transport.Write(ctx, p.Marshal())
}

func (l *link) receive(ctx context.Context) (Packet, error) {
	for {
		p, n, err := ParsePacket(l.pending)
		if err == nil {
			l.pending = l.pending[n:]
			return p, nil
		}
		if !errors.Is(err, errIncomplete) {
			l.pending = nil
			return Packet{}, err
		}

		chunk, err := l.transport.Read(ctx, 256)
		if err != nil {
			return Packet{}, err
		}
		l.pending = append(l.pending, chunk...)
	}
}

// command sends an instruction and returns the confirmation code and any
// extra ack bytes
func (l *link) command(ctx context.Context, code byte, params ...byte) (byte, []byte, error) {
	l.pending = nil
	if err := l.send(ctx, PIDCommand, append([]byte{code}, params...)); err != nil {
		return 0, nil, fmt.Errorf("instruction 0x%02x: %w", code, err)
	}

	ack, err := l.receive(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("instruction 0x%02x ack: %w", code, err)
	}
	if ack.PID != PIDAck || len(ack.Payload) == 0 {
		return 0, nil, fmt.Errorf("%w: instruction 0x%02x answered with pid 0x%02x", driver.ErrProtocol, code, ack.PID)
	}
	return ack.Payload[0], ack.Payload[1:], nil
}

// readData collects data packets up to the end packet
func (l *link) readData(ctx context.Context) ([]byte, error) {
	var data []byte
	for {
		p, err := l.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch p.PID {
		case PIDData, PIDEndData:
			data = append(data, p.Payload...)
		default:
			return nil, fmt.Errorf("%w: unexpected pid 0x%02x in data phase", driver.ErrProtocol, p.PID)
		}
		if len(data) > maxTransfer {
			return nil, fmt.Errorf("%w: data phase exceeds %d bytes", driver.ErrProtocol, maxTransfer)
		}
		if p.PID == PIDEndData {
			return data, nil
		}
	}
}

// writeData sends data split into packets, the last one flagged as end
func (l *link) writeData(ctx context.Context, data []byte) error {
	chunks := lo.Chunk(data, l.packetSize)
	for i, chunk := range chunks {
		pid := PIDData
		if i == len(chunks)-1 {
			pid = PIDEndData
		}
		if err := l.send(ctx, pid, chunk); err != nil {
			return fmt.Errorf("data packet %d: %w", i, err)
		}
	}
	return nil
}
