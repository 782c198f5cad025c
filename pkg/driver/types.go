// pkg/driver/types.go
package driver

import (
	"slices"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/fpimg"
)

// USBID maps a vendor/product pair to the devtype it identifies
type USBID struct {
	Vendor  uint16              `json:"vendor" mapstructure:"vendor"`
	Product uint16              `json:"product" mapstructure:"product"`
	DevType devicetypes.DevType `json:"devtype" mapstructure:"devtype"`
}

// Info is the static descriptor of a driver
type Info struct {
	ID         devicetypes.DriverID       `json:"id"`
	Name       string                     `json:"name"`
	FullName   string                     `json:"full_name"`
	ScanType   devicetypes.ScanType       `json:"scan_type"`
	Connection devicetypes.ConnectionType `json:"connection"`
	DevTypes   []devicetypes.DevType      `json:"devtypes"`
	USBIDs     []USBID                    `json:"usb_ids,omitempty"`
	Imaging    bool                       `json:"imaging"`
}

// SupportsDevType reports whether devtype is served by the driver
func (i *Info) SupportsDevType(devtype devicetypes.DevType) bool {
	return slices.Contains(i.DevTypes, devtype)
}

// MatchUSB returns the devtype for a vendor/product pair
func (i *Info) MatchUSB(vendor, product uint16) (devicetypes.DevType, bool) {
	for _, id := range i.USBIDs {
		if id.Vendor == vendor && id.Product == product {
			return id.DevType, true
		}
	}
	return 0, false
}

// Feature is an opaque per-scan feature set produced by a driver's extractor
type Feature []byte

// Scan is the raw result of one capture cycle. Image is nil for sensors that
// keep the scan in device memory.
type Scan struct {
	Image *fpimg.Image
	Raw   []byte
}

// Extraction is the outcome of one enrollment stage
type Extraction struct {
	Result devicetypes.EnrollResult

	// Feature is set with EnrollStagePass
	Feature Feature

	// Template is set with EnrollComplete
	Template []byte
}
