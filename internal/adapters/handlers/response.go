package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/iwtcode/hipotService/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse возвращает стандартизированный ответ с ошибкой
func (h *Handler) ErrorResponse(c *gin.Context, err error, statusCode int, message string, showError bool) {
	errorMessage := message
	if showError && err != nil {
		errorMessage = message + ": " + err.Error()
	}

	h.logger.Error(message, "error", err, "statusCode", statusCode)
	c.AbortWithStatusJSON(statusCode, gin.H{
		"status": "error",
		"error": gin.H{
			"code":    statusCode,
			"message": errorMessage,
		},
	})
}

// BadRequest возвращает ошибку 400
func (h *Handler) BadRequest(c *gin.Context, err error, message string) {
	if message == "" {
		message = errors.BadRequest
	}
	h.ErrorResponse(c, err, http.StatusBadRequest, message, true)
}

// InternalError возвращает ошибку 500
func (h *Handler) InternalError(c *gin.Context, err error) {
	h.ErrorResponse(c, err, http.StatusInternalServerError, errors.InternalServerError, false)
}

// NotFound возвращает ошибку 404
func (h *Handler) NotFound(c *gin.Context, err error) {
	h.ErrorResponse(c, err, http.StatusNotFound, errors.NotFound, true)
}

// Conflict возвращает ошибку 409
func (h *Handler) Conflict(c *gin.Context, err error) {
	h.ErrorResponse(c, err, http.StatusConflict, errors.Conflict, true)
}

// Fail подбирает HTTP-статус по типу ошибки сценария
func (h *Handler) Fail(c *gin.Context, err error) {
	var seqErr *errors.SequenceError
	var appErr *errors.AppError
	switch {
	case errors.IsValidation(err):
		h.BadRequest(c, err, "Invalid request")
	case stderrors.As(err, &seqErr), stderrors.Is(err, errors.ErrSerialNotRequested):
		h.Conflict(c, err)
	case stderrors.Is(err, errors.ErrDataNotFound):
		h.NotFound(c, err)
	case errors.IsTransport(err), stderrors.Is(err, errors.ErrDeviceError):
		h.ErrorResponse(c, err, http.StatusBadGateway, "Hardware controller error", true)
	case stderrors.As(err, &appErr):
		h.ErrorResponse(c, appErr.Err, appErr.Code, appErr.Message, appErr.IsUserFacing)
	default:
		h.InternalError(c, err)
	}
}
