// internal/handler/operation_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fprint-service/internal/service"
	"fprint-service/internal/utils"
	"fprint-service/pkg/devicetypes"
)

// OperationHandler runs enrollments and verifications and manages prints
type OperationHandler struct {
	operationService *service.OperationService
	logger           *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operationService *service.OperationService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
		logger:           utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// FingerRequest names the finger an operation is for, either by name
// ("right-index") or by code ("7")
type FingerRequest struct {
	Finger string `json:"finger" binding:"required" example:"right-index"`
}

func bindFinger(c *gin.Context) (devicetypes.Finger, bool) {
	var req FingerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return 0, false
	}

	finger, err := devicetypes.ParseFinger(req.Finger)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid finger", err)
		return 0, false
	}
	return finger, true
}

// Enroll enrolls a finger on an open device
// @Summary Enroll finger
// @Description Run a complete enrollment, one scan per stage, and save the resulting print. Progress is published on the event stream.
// @Tags Operations
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body FingerRequest true "Finger to enroll"
// @Success 200 {object} utils.APIResponse{data=model.EnrollOutcome} "Enrollment finished"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Failure 409 {object} utils.APIResponse "Device busy"
// @Failure 422 {object} utils.APIResponse "Too many retries"
// @Failure 504 {object} utils.APIResponse "Enrollment timed out"
// @Router /sessions/{id}/enroll [post]
func (h *OperationHandler) Enroll(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	finger, ok := bindFinger(c)
	if !ok {
		return
	}

	outcome, err := h.operationService.Enroll(c.Request.Context(), id, finger)
	if err != nil {
		h.logger.Error("Enrollment failed", zap.String("session_id", id.String()), zap.Error(err))
		respondError(c, "Enrollment failed", err)
		return
	}

	message := "Finger enrolled"
	if outcome.Print == nil {
		message = "Enrollment failed, scans did not match"
	}
	utils.SuccessResponse(c, http.StatusOK, message, outcome)
}

// Verify checks a finger against its stored print
// @Summary Verify finger
// @Description Scan a finger once and compare it with the print stored for it on this kind of device
// @Tags Operations
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body FingerRequest true "Finger to verify"
// @Success 200 {object} utils.APIResponse{data=model.VerifyOutcome} "Verification finished"
// @Failure 400 {object} utils.APIResponse "Invalid request or incompatible print"
// @Failure 404 {object} utils.APIResponse "Session or print not found"
// @Failure 409 {object} utils.APIResponse "Device busy"
// @Failure 422 {object} utils.APIResponse "Device cannot verify"
// @Router /sessions/{id}/verify [post]
func (h *OperationHandler) Verify(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	finger, ok := bindFinger(c)
	if !ok {
		return
	}

	outcome, err := h.operationService.Verify(c.Request.Context(), id, finger)
	if err != nil {
		h.logger.Error("Verification failed", zap.String("session_id", id.String()), zap.Error(err))
		respondError(c, "Verification failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Verification finished", outcome)
}

// ListPrints lists stored prints
// @Summary List prints
// @Description Get every stored print without reading its template
// @Tags Prints
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.PrintRecord} "Prints retrieved successfully"
// @Failure 500 {object} utils.APIResponse "Store unavailable"
// @Router /prints [get]
func (h *OperationHandler) ListPrints(c *gin.Context) {
	prints, err := h.operationService.ListPrints(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list prints", zap.Error(err))
		respondError(c, "Failed to list prints", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Prints retrieved successfully", prints)
}

// DeletePrint removes a stored print
// @Summary Delete print
// @Description Delete the print stored for a finger on one kind of device
// @Tags Prints
// @Produce json
// @Param driver path string true "Driver ID, decimal or 0x hex, or driver name"
// @Param devtype path string true "Device type, decimal or 0x hex"
// @Param finger path string true "Finger name or code"
// @Success 200 {object} utils.APIResponse "Print deleted"
// @Failure 400 {object} utils.APIResponse "Invalid key"
// @Failure 404 {object} utils.APIResponse "Print or driver not found"
// @Router /prints/{driver}/{devtype}/{finger} [delete]
func (h *OperationHandler) DeletePrint(c *gin.Context) {
	var driverID devicetypes.DriverID
	n, err := strconv.ParseUint(c.Param("driver"), 0, 16)
	switch {
	case err == nil:
		driverID = devicetypes.DriverID(n)
	case errors.Is(err, strconv.ErrSyntax):
		if driverID, err = h.operationService.DriverByName(c.Param("driver")); err != nil {
			respondError(c, "Unknown driver", err)
			return
		}
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid driver ID", err)
		return
	}
	devtype, err := strconv.ParseUint(c.Param("devtype"), 0, 16)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device type", err)
		return
	}
	finger, err := devicetypes.ParseFinger(c.Param("finger"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid finger", err)
		return
	}

	err = h.operationService.DeletePrint(c.Request.Context(), driverID, devicetypes.DevType(devtype), finger)
	if err != nil {
		respondError(c, "Failed to delete print", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Print deleted", nil)
}
