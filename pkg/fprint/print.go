package fprint

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
)

const printHeaderSize = 4

// PrintData is an enrolled template tagged with the driver and devtype that
// produced it. It is immutable.
//
// The serialized form is big-endian driver id (2 bytes), devtype (2 bytes)
// and the driver's payload.
type PrintData struct {
	driverID devicetypes.DriverID
	devtype  devicetypes.DevType
	payload  []byte
}

// NewPrintData wraps a driver payload. payload is copied and must not be empty.
func NewPrintData(id devicetypes.DriverID, devtype devicetypes.DevType, payload []byte) (*PrintData, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptData)
	}
	return &PrintData{
		driverID: id,
		devtype:  devtype,
		payload:  append([]byte(nil), payload...),
	}, nil
}

// PrintDataFromBytes parses the serialized form. Input of four bytes or less
// carries no payload and is rejected.
func PrintDataFromBytes(b []byte) (*PrintData, error) {
	if len(b) <= printHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for print data", ErrCorruptData, len(b))
	}
	return NewPrintData(
		devicetypes.DriverID(binary.BigEndian.Uint16(b[0:2])),
		devicetypes.DevType(binary.BigEndian.Uint16(b[2:4])),
		b[printHeaderSize:],
	)
}

// Bytes returns the serialized form
func (p *PrintData) Bytes() []byte {
	buf := make([]byte, printHeaderSize, printHeaderSize+len(p.payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(p.driverID))
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.devtype))
	return append(buf, p.payload...)
}

func (p *PrintData) DriverID() devicetypes.DriverID { return p.driverID }
func (p *PrintData) DevType() devicetypes.DevType   { return p.devtype }

// Payload returns a copy of the driver template
func (p *PrintData) Payload() []byte {
	return append([]byte(nil), p.payload...)
}

// LoadPrint reads the print enrolled for finger on devices like dev
func (c *Context) LoadPrint(ctx context.Context, dev *Device, finger devicetypes.Finger) (*PrintData, error) {
	return c.loadKey(ctx, store.PrintKey{
		DriverID: dev.DriverID(),
		DevType:  dev.DevType(),
		Finger:   finger,
	})
}

func (c *Context) loadKey(ctx context.Context, key store.PrintKey) (*PrintData, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	raw, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	p, err := PrintDataFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("stored print %s: %w", key, err)
	}
	if p.driverID != key.DriverID || p.devtype != key.DevType {
		return nil, fmt.Errorf("%w: print stored as %s carries driver %s devtype %s",
			ErrCorruptData, key, p.driverID, p.devtype)
	}
	return p, nil
}

// SavePrint stores p for finger, replacing any earlier print of that finger
// on the same kind of device
func (c *Context) SavePrint(ctx context.Context, p *PrintData, finger devicetypes.Finger) error {
	key := store.PrintKey{DriverID: p.driverID, DevType: p.devtype, Finger: finger}
	if err := key.Validate(); err != nil {
		return err
	}

	if err := c.store.Save(ctx, key, p.Bytes()); err != nil {
		return err
	}

	c.logger.Debug("Print saved", zap.Stringer("key", key))
	return nil
}

// DeletePrint removes a stored print
func (c *Context) DeletePrint(ctx context.Context, p DiscoveredPrint) error {
	key := p.key()
	if err := key.Validate(); err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}
