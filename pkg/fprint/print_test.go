package fprint

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
)

func TestPrintDataBytes(t *testing.T) {
	raw := []byte{0x00, 0x07, 0x00, 0x01, 0xAA, 0xBB}

	p, err := PrintDataFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, devicetypes.DriverID(7), p.DriverID())
	assert.Equal(t, devicetypes.DevType(1), p.DevType())
	assert.Equal(t, []byte{0xAA, 0xBB}, p.Payload())
	assert.Equal(t, raw, p.Bytes())

	// the parsed print does not alias its input
	raw[4] = 0x00
	assert.Equal(t, []byte{0xAA, 0xBB}, p.Payload())
}

func TestPrintDataRejectsShortInput(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x00}, {0x00, 0x07, 0x00, 0x01}} {
		_, err := PrintDataFromBytes(raw)
		assert.ErrorIs(t, err, ErrCorruptData, "input %x", raw)
	}

	_, err := NewPrintData(7, 1, nil)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestPrintDataRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		id      devicetypes.DriverID
		devtype devicetypes.DevType
		payload []byte
	}{
		{"zero header", 0, 0, []byte{0x01}},
		{"max header", 0xFFFF, 0xFFFF, []byte{0xFF, 0x00}},
		{"mixed header", 0x0002, 0xFFFF, []byte("template")},
		{"large payload", 0xFFFF, 0, bytes.Repeat([]byte{0x5A, 0xA5, 0x00}, 3000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPrintData(tt.id, tt.devtype, tt.payload)
			require.NoError(t, err)

			raw := p.Bytes()
			assert.Len(t, raw, 4+len(tt.payload))

			got, err := PrintDataFromBytes(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.id, got.DriverID())
			assert.Equal(t, tt.devtype, got.DevType())
			assert.Equal(t, tt.payload, got.Payload())
		})
	}
}

func TestPayloadIsACopy(t *testing.T) {
	p, err := NewPrintData(0x1234, 0xBEEF, []byte{1, 2, 3})
	require.NoError(t, err)

	p.Payload()[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, p.Payload())
	assert.Equal(t, []byte{0x12, 0x34, 0xBE, 0xEF, 1, 2, 3}, p.Bytes())
}

func TestSaveDiscoverLoadDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 1}))
	dev := f.open(t)

	p, err := NewPrintData(7, 1, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	require.NoError(t, f.ctx.SavePrint(ctx, p, devicetypes.RightIndex))

	other, err := NewPrintData(9, 1, []byte{0xCC})
	require.NoError(t, err)
	require.NoError(t, f.ctx.SavePrint(ctx, other, devicetypes.LeftThumb))

	loaded, err := f.ctx.LoadPrint(ctx, dev, devicetypes.RightIndex)
	require.NoError(t, err)
	assert.Equal(t, p.Bytes(), loaded.Bytes())

	_, err = f.ctx.LoadPrint(ctx, dev, devicetypes.LeftThumb)
	assert.ErrorIs(t, err, ErrPrintNotFound)

	prints, err := f.ctx.DiscoverPrints(ctx)
	require.NoError(t, err)
	require.Len(t, prints, 2)

	var mine []DiscoveredPrint
	for _, dp := range prints {
		if dev.SupportsDiscoveredPrint(dp) {
			mine = append(mine, dp)
		}
	}
	require.Len(t, mine, 1)
	assert.Equal(t, devicetypes.RightIndex, mine[0].Finger)

	fromList, err := mine[0].Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.Bytes(), fromList.Bytes())

	require.NoError(t, f.ctx.DeletePrint(ctx, mine[0]))
	_, err = mine[0].Load(ctx)
	assert.ErrorIs(t, err, ErrPrintNotFound)
	assert.ErrorIs(t, f.ctx.DeletePrint(ctx, mine[0]), ErrPrintNotFound)
}

func TestSaveOverwritesFinger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 1}))
	dev := f.open(t)

	first, _ := NewPrintData(7, 1, []byte{0x01})
	second, _ := NewPrintData(7, 1, []byte{0x02})
	require.NoError(t, f.ctx.SavePrint(ctx, first, devicetypes.RightThumb))
	require.NoError(t, f.ctx.SavePrint(ctx, second, devicetypes.RightThumb))

	loaded, err := f.ctx.LoadPrint(ctx, dev, devicetypes.RightThumb)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, loaded.Payload())
}

func TestInvalidFinger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 1}))
	dev := f.open(t)

	p, _ := NewPrintData(7, 1, []byte{0x01})
	assert.ErrorIs(t, f.ctx.SavePrint(ctx, p, 0), ErrInvalidFinger)
	assert.ErrorIs(t, f.ctx.SavePrint(ctx, p, 11), ErrInvalidFinger)

	_, err := f.ctx.LoadPrint(ctx, dev, 0)
	assert.ErrorIs(t, err, ErrInvalidFinger)
}

func TestLoadRejectsMismatchedHeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newScriptDriver(7, &scriptSession{stages: 1}))
	dev := f.open(t)

	// a print for driver 9 written under driver 7's key
	key := store.PrintKey{DriverID: 7, DevType: 1, Finger: devicetypes.LeftIndex}
	require.NoError(t, f.store.Save(ctx, key, []byte{0x00, 0x09, 0x00, 0x01, 0xAA}))

	_, err := f.ctx.LoadPrint(ctx, dev, devicetypes.LeftIndex)
	assert.ErrorIs(t, err, ErrCorruptData)

	require.NoError(t, os.WriteFile(f.store.Path(key), []byte{0x00, 0x07}, 0o600))
	_, err = f.ctx.LoadPrint(ctx, dev, devicetypes.LeftIndex)
	assert.ErrorIs(t, err, ErrCorruptData)
}
