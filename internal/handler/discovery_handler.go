// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fprint-service/internal/model"
	"fprint-service/internal/service"
	"fprint-service/internal/utils"
)

// DiscoveryHandler serves the driver list and device discovery
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	deviceService    *service.DeviceService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, deviceService *service.DeviceService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		deviceService:    deviceService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// DeviceList is the body of a discovery response
type DeviceList struct {
	Devices  []model.DeviceRecord `json:"devices"`
	Scanners []string             `json:"scanners"`

	// Warning is set when some scanners failed and the list may be partial
	Warning string `json:"warning,omitempty"`
}

// ListDrivers lists the compiled-in drivers
// @Summary List drivers
// @Description Get every registered fingerprint driver with its supported hardware
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.DriverRecord} "Drivers retrieved successfully"
// @Router /drivers [get]
func (h *DiscoveryHandler) ListDrivers(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Drivers retrieved successfully", h.discoveryService.Drivers())
}

// ListDevices runs discovery
// @Summary Discover devices
// @Description Scan every enabled bus for supported sensors. The index of a device in the result is used to open it.
// @Tags Discovery
// @Produce json
// @Param scanner query string false "Run only this scanner (usb, serial, virtual)"
// @Success 200 {object} utils.APIResponse{data=DeviceList} "Devices discovered"
// @Failure 400 {object} utils.APIResponse "Unknown scanner"
// @Failure 502 {object} utils.APIResponse "Discovery failed"
// @Failure 504 {object} utils.APIResponse "Discovery timed out"
// @Router /devices [get]
func (h *DiscoveryHandler) ListDevices(c *gin.Context) {
	records, err := h.deviceService.ListDevices(c.Request.Context(), c.Query("scanner"))
	if err != nil && len(records) == 0 {
		h.logger.Error("Device discovery failed", zap.Error(err))
		respondError(c, "Device discovery failed", err)
		return
	}

	list := DeviceList{Devices: records, Scanners: h.discoveryService.Scanners()}
	if err != nil {
		list.Warning = err.Error()
	}
	utils.SuccessResponse(c, http.StatusOK, "Devices discovered", list)
}
