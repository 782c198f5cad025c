// internal/handler/device_handler.go
package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fprint-service/internal/service"
	"fprint-service/internal/utils"
)

// PGMContentType is the media type of captured images
const PGMContentType = "image/x-portable-graymap"

// DeviceHandler opens and closes devices and serves raw captures
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// sessionID parses the :id path parameter, answering 400 when it is not a uuid
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return uuid.Nil, false
	}
	return id, true
}

// OpenDevice opens a discovered device
// @Summary Open a device
// @Description Open the device at the given index of the last discovery and start a session on it
// @Tags Sessions
// @Produce json
// @Param index path int true "Device index"
// @Success 201 {object} utils.APIResponse{data=model.Session} "Device opened"
// @Failure 400 {object} utils.APIResponse "Invalid index"
// @Failure 404 {object} utils.APIResponse "No device at index"
// @Failure 409 {object} utils.APIResponse "Device already open"
// @Failure 502 {object} utils.APIResponse "Device did not respond"
// @Router /devices/{index}/open [post]
func (h *DeviceHandler) OpenDevice(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device index", err)
		return
	}

	session, err := h.deviceService.Open(c.Request.Context(), index)
	if err != nil {
		h.logger.Error("Failed to open device", zap.Int("index", index), zap.Error(err))
		respondError(c, "Failed to open device", err)
		return
	}

	h.logger.Info("Device opened", zap.String("session_id", session.ID.String()), zap.String("device", session.DeviceKey))
	utils.SuccessResponse(c, http.StatusCreated, "Device opened", session)
}

// ListSessions lists open devices
// @Summary List sessions
// @Description Get every open device session
// @Tags Sessions
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.Session} "Sessions retrieved successfully"
// @Router /sessions [get]
func (h *DeviceHandler) ListSessions(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", h.deviceService.List())
}

// GetSession describes an open device
// @Summary Get session
// @Description Get the capabilities and enrollment phase of an open device
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Session retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [get]
func (h *DeviceHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.deviceService.Get(id)
	if err != nil {
		respondError(c, "Session not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", session)
}

// CloseSession closes an open device
// @Summary Close session
// @Description Close the device, cancelling any operation still running on it
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse "Session closed"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [delete]
func (h *DeviceHandler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.deviceService.Close(id); err != nil {
		h.logger.Error("Failed to close session", zap.String("session_id", id.String()), zap.Error(err))
		respondError(c, "Failed to close session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session closed", nil)
}

// PingDevice probes the session's transport
// @Summary Ping device
// @Description Check that the session's transport still reaches the sensor
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Device reachable"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Failure 502 {object} utils.APIResponse "Device unreachable"
// @Router /sessions/{id}/ping [get]
func (h *DeviceHandler) PingDevice(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.deviceService.Ping(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("Device ping failed", zap.String("session_id", id.String()), zap.Error(err))
		respondError(c, "Device unreachable", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device reachable", session)
}

// CaptureImage returns one raw scan as a PGM image
// @Summary Capture image
// @Description Capture one image from an imaging device. Without unconditional the request waits for a finger.
// @Tags Sessions
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param unconditional query bool false "Capture without waiting for a finger" default(false)
// @Success 200 {file} file "PGM image"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Failure 409 {object} utils.APIResponse "Device busy"
// @Failure 422 {object} utils.APIResponse "Device does not produce images"
// @Router /sessions/{id}/image [get]
func (h *DeviceHandler) CaptureImage(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	unconditional, _ := strconv.ParseBool(c.DefaultQuery("unconditional", "false"))

	img, err := h.deviceService.CaptureImage(c.Request.Context(), id, unconditional)
	if err != nil {
		h.logger.Error("Image capture failed", zap.String("session_id", id.String()), zap.Error(err))
		respondError(c, "Image capture failed", err)
		return
	}

	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to encode image", err)
		return
	}

	c.Header("X-Image-Width", strconv.Itoa(img.Width()))
	c.Header("X-Image-Height", strconv.Itoa(img.Height()))
	c.Data(http.StatusOK, PGMContentType, buf.Bytes())
}
