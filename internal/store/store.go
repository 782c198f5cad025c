// Package store persists enrolled prints. Stored values are print data in
// its serialized form; the store never looks inside them.
package store

import (
	"context"
	"fmt"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// PrintKey addresses one stored print
type PrintKey struct {
	DriverID devicetypes.DriverID `json:"driver_id"`
	DevType  devicetypes.DevType  `json:"devtype"`
	Finger   devicetypes.Finger   `json:"finger"`
}

func (k PrintKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DriverID, k.DevType, k.Finger)
}

// Validate rejects keys that can never address a print
func (k PrintKey) Validate() error {
	if !k.Finger.Valid() {
		return fmt.Errorf("%w: %d", driver.ErrInvalidFinger, int(k.Finger))
	}
	return nil
}

// Less orders keys by driver, devtype and finger
func (k PrintKey) Less(o PrintKey) bool {
	if k.DriverID != o.DriverID {
		return k.DriverID < o.DriverID
	}
	if k.DevType != o.DevType {
		return k.DevType < o.DevType
	}
	return k.Finger < o.Finger
}

// Store is a print repository. Load and Delete return driver.ErrPrintNotFound
// for a key that holds nothing.
type Store interface {
	Save(ctx context.Context, key PrintKey, data []byte) error
	Load(ctx context.Context, key PrintKey) ([]byte, error)
	Delete(ctx context.Context, key PrintKey) error

	// List returns every stored key in key order without reading payloads
	List(ctx context.Context) ([]PrintKey, error)
}
