package imgdev

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"fprint-service/pkg/driver"
)

const templateVersion = 1

// Template is the payload stored in print data for image devices
type Template struct {
	Version  int         `cbor:"1,keyasint"`
	Grid     int         `cbor:"2,keyasint"`
	Features [][]float32 `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// EncodeFeature serializes one orientation field
func EncodeFeature(field []float32) (driver.Feature, error) {
	b, err := encMode.Marshal(field)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature: %w", err)
	}
	return b, nil
}

// DecodeFeature parses a feature produced by EncodeFeature for the given grid
func DecodeFeature(f driver.Feature, grid int) ([]float32, error) {
	var field []float32
	if err := cbor.Unmarshal(f, &field); err != nil {
		return nil, fmt.Errorf("%w: feature: %v", driver.ErrCorruptData, err)
	}
	if len(field) != 2*grid*grid {
		return nil, fmt.Errorf("%w: feature has %d values, want %d", driver.ErrCorruptData, len(field), 2*grid*grid)
	}
	return field, nil
}

// Marshal encodes the template
func (t *Template) Marshal() ([]byte, error) {
	b, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	return b, nil
}

// ParseTemplate decodes and validates a template payload
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: template: %v", driver.ErrCorruptData, err)
	}

	if t.Version != templateVersion {
		return nil, fmt.Errorf("%w: template version %d", driver.ErrCorruptData, t.Version)
	}
	if t.Grid <= 0 || len(t.Features) == 0 {
		return nil, fmt.Errorf("%w: empty template", driver.ErrCorruptData)
	}
	for i, f := range t.Features {
		if len(f) != 2*t.Grid*t.Grid {
			return nil, fmt.Errorf("%w: template feature %d has %d values", driver.ErrCorruptData, i, len(f))
		}
	}
	return &t, nil
}
