// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/fpimg"
)

var validBaudRates = []int{9600, 19200, 38400, 57600, 115200}

// CreateProtocol creates a protocol based on connection type and parameters
// as produced by discovery
func CreateProtocol(connectionType devicetypes.ConnectionType, params map[string]interface{}, logger *zap.Logger) (DeviceProtocol, error) {
	if err := ValidateConfig(connectionType, params); err != nil {
		return nil, err
	}

	switch connectionType {
	case devicetypes.ConnectionTypeSerial:
		return createSerialProtocol(params, logger), nil
	case devicetypes.ConnectionTypeUSB:
		return createUSBProtocol(params, logger), nil
	case devicetypes.ConnectionTypeVirtual:
		return createVirtualProtocol(params, logger), nil
	default:
		return nil, fmt.Errorf("unsupported protocol type: %s", connectionType)
	}
}

func createSerialProtocol(params map[string]interface{}, logger *zap.Logger) DeviceProtocol {
	serialConfig := &SerialConfig{
		Port:     params["port"].(string),
		BaudRate: 57600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  2 * time.Second,
	}

	if v, ok := intParam(params, "baud_rate"); ok {
		serialConfig.BaudRate = v
	}
	if v, ok := intParam(params, "data_bits"); ok {
		serialConfig.DataBits = v
	}
	if v, ok := intParam(params, "stop_bits"); ok {
		serialConfig.StopBits = v
	}
	if parity, ok := params["parity"].(string); ok {
		serialConfig.Parity = parity
	}
	if v, ok := durationParam(params, "timeout"); ok {
		serialConfig.Timeout = v
	}
	if v, ok := durationParam(params, "poll_interval"); ok {
		serialConfig.PollInterval = v
	}

	logger.Info("Creating serial protocol",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

func createUSBProtocol(params map[string]interface{}, logger *zap.Logger) DeviceProtocol {
	vendor, _ := intParam(params, "vendor_id")
	product, _ := intParam(params, "product_id")

	usbConfig := &USBConfig{
		VendorID:    uint16(vendor),
		ProductID:   uint16(product),
		InEndpoint:  0x81,
		OutEndpoint: 0x01,
	}

	if v, ok := intParam(params, "bus"); ok {
		usbConfig.Bus = v
	}
	if v, ok := intParam(params, "address"); ok {
		usbConfig.Address = v
	}
	if v, ok := intParam(params, "in_endpoint"); ok {
		usbConfig.InEndpoint = v
	}
	if v, ok := intParam(params, "out_endpoint"); ok {
		usbConfig.OutEndpoint = v
	}
	if v, ok := durationParam(params, "timeout"); ok {
		usbConfig.Timeout = v
	}

	logger.Info("Creating USB protocol",
		zap.String("vendor_id", fmt.Sprintf("0x%04X", usbConfig.VendorID)),
		zap.String("product_id", fmt.Sprintf("0x%04X", usbConfig.ProductID)),
		zap.Int("bus", usbConfig.Bus),
		zap.Int("address", usbConfig.Address),
	)

	return NewUSBConnection(usbConfig, logger)
}

func createVirtualProtocol(params map[string]interface{}, logger *zap.Logger) DeviceProtocol {
	virtualConfig := &VirtualConfig{}

	if dir, ok := params["dir"].(string); ok {
		virtualConfig.Dir = dir
	}
	if finger, ok := params["finger"].(bool); ok {
		virtualConfig.Finger = finger
	}

	conn := NewVirtualConnection(virtualConfig, logger)
	if frames, ok := params["frames"].([]*fpimg.Image); ok {
		for _, frame := range frames {
			if err := conn.Feed(frame); err != nil {
				logger.Warn("Dropping preloaded frame", zap.Error(err))
			}
		}
	}

	logger.Info("Creating virtual protocol", zap.String("dir", virtualConfig.Dir))
	return conn
}

// ValidateConfig validates parameters for a specific protocol type
func ValidateConfig(connectionType devicetypes.ConnectionType, params map[string]interface{}) error {
	switch connectionType {
	case devicetypes.ConnectionTypeSerial:
		return validateSerialConfig(params)
	case devicetypes.ConnectionTypeUSB:
		return validateUSBConfig(params)
	case devicetypes.ConnectionTypeVirtual:
		return nil
	default:
		return fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

func validateSerialConfig(params map[string]interface{}) error {
	if port, ok := params["port"].(string); !ok || port == "" {
		return fmt.Errorf("serial port is required")
	}

	if _, present := params["baud_rate"]; present {
		rate, ok := intParam(params, "baud_rate")
		if !ok {
			return fmt.Errorf("invalid baud_rate type")
		}
		if !slices.Contains(validBaudRates, rate) {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
	}

	return nil
}

func validateUSBConfig(params map[string]interface{}) error {
	if _, ok := intParam(params, "vendor_id"); !ok {
		return fmt.Errorf("USB vendor_id is required")
	}
	if _, ok := intParam(params, "product_id"); !ok {
		return fmt.Errorf("USB product_id is required")
	}
	return nil
}

// intParam accepts JSON numbers, Go integers and strings such as "0x27c6"
func intParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case uint16:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func durationParam(params map[string]interface{}, key string) (time.Duration, bool) {
	switch v := params[key].(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	default:
		return 0, false
	}
}
