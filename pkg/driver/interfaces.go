// pkg/driver/interfaces.go
package driver

import (
	"context"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/fpimg"
)

// Transport is the byte pipe a driver speaks its sensor protocol over.
// Both calls must return promptly once ctx is cancelled.
type Transport interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)
}

// Driver is implemented by every sensor family. It is immutable once
// registered and may be shared by any number of goroutines.
type Driver interface {
	Info() *Info

	// Open starts a session on an already opened transport
	Open(ctx context.Context, transport Transport, devtype devicetypes.DevType) (Session, error)
}

// Session is one open sensor. Calls are never made concurrently.
type Session interface {
	// EnrollStages is the number of accepted scans needed for a template
	EnrollStages() int

	// Capture performs one scan cycle. When unconditional is false it
	// blocks until a finger is present.
	Capture(ctx context.Context, unconditional bool) (*Scan, error)

	// ExtractEnroll runs the feature extractor for the next enrollment stage.
	// accepted holds the features of the stages accepted so far, in order.
	ExtractEnroll(ctx context.Context, scan *Scan, accepted []Feature) (*Extraction, error)

	Close() error
}

// Imager is implemented by sessions that can return raster images
type Imager interface {
	// ImageSize returns the raster geometry. A zero height means the height
	// varies per scan, as with swipe sensors.
	ImageSize() (width, height int)

	CaptureImage(ctx context.Context, unconditional bool) (*fpimg.Image, error)
}

// Verifier is implemented by sessions that can compare a live scan with a template
type Verifier interface {
	// ExtractVerify turns a scan into a probe feature, or reports why the
	// scan is unusable
	ExtractVerify(ctx context.Context, scan *Scan) (Feature, devicetypes.QualityResult, error)

	// Compare scores a probe against a template payload produced by this driver
	Compare(ctx context.Context, probe Feature, template []byte) (bool, error)
}

// Handshaker is implemented by drivers that can tell, on an opened
// transport, whether their sensor answers at the other end. The check
// must not leave a session behind.
type Handshaker interface {
	Handshake(ctx context.Context, transport Transport) error
}

// LineSettings is implemented by serial drivers with a preferred line speed
type LineSettings interface {
	BaudRate() int
}
