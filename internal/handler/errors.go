package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fprint-service/internal/service"
	"fprint-service/internal/utils"
	"fprint-service/pkg/fprint"
)

// statusFor maps service and library errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, fprint.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, fprint.ErrPrintNotFound),
		errors.Is(err, fprint.ErrUnknownDriver):
		return http.StatusNotFound
	case errors.Is(err, fprint.ErrIncompatibleTemplate),
		errors.Is(err, fprint.ErrInvalidFinger),
		errors.Is(err, service.ErrUnknownScanner):
		return http.StatusBadRequest
	case errors.Is(err, fprint.ErrImagingUnsupported),
		errors.Is(err, fprint.ErrVerifyUnsupported),
		errors.Is(err, service.ErrRetryBudgetExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fprint.ErrDeviceClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, fprint.ErrTransport),
		errors.Is(err, fprint.ErrProtocol),
		errors.Is(err, fprint.ErrCorruptData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, message string, err error) {
	utils.ErrorResponse(c, statusFor(err), message, err)
}
