// internal/service/records.go
package service

import (
	"fmt"
	"maps"

	"github.com/samber/lo"

	"fprint-service/internal/model"
	"fprint-service/internal/store"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
	"fprint-service/pkg/fprint"
)

func driverRecord(d driver.Driver) model.DriverRecord {
	info := d.Info()
	return model.DriverRecord{
		ID:             info.ID.String(),
		Name:           info.Name,
		FullName:       info.FullName,
		ScanType:       info.ScanType.String(),
		ConnectionType: string(info.Connection),
		DevTypes:       lo.Map(info.DevTypes, func(t devicetypes.DevType, _ int) string { return t.String() }),
		USBIDs: lo.Map(info.USBIDs, func(id driver.USBID, _ int) string {
			return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
		}),
		Imaging: info.Imaging,
	}
}

// connectionInfo drops values that only make sense in process, such as
// preloaded frames
func connectionInfo(info map[string]interface{}) model.JSONObject {
	out := make(model.JSONObject, len(info))
	maps.Copy(out, info)
	delete(out, "frames")
	return out
}

func deviceRecord(index int, dd *fprint.DiscoveredDevice) model.DeviceRecord {
	info := dd.Driver.Info()
	return model.DeviceRecord{
		Index:          index,
		Key:            dd.Key,
		ConnectionType: string(dd.ConnectionType),
		ConnectionInfo: connectionInfo(dd.ConnectionInfo),
		DriverID:       info.ID.String(),
		Driver:         info.Name,
		DevType:        dd.DevType.String(),
		Description:    dd.Description,
		SerialNumber:   dd.SerialNumber,
		Location:       dd.Location,
		Status:         model.DeviceStatusAvailable,
	}
}

func printRecord(id devicetypes.DriverID, devtype devicetypes.DevType, finger devicetypes.Finger) model.PrintRecord {
	return model.PrintRecord{
		Key:        store.PrintKey{DriverID: id, DevType: devtype, Finger: finger}.String(),
		DriverID:   id.String(),
		DevType:    devtype.String(),
		Finger:     int(finger),
		FingerName: finger.String(),
	}
}
