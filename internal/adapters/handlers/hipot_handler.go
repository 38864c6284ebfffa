package handlers

import (
	"fmt"
	"net/http"

	"github.com/iwtcode/hipotService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// SetHipotVoltage задает напряжение hi-pot источника.
// @Summary Установить напряжение
// @Tags Hipot
// @Accept json
// @Produce json
// @Param input body models.SetVoltageRequest true "Напряжение, В"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Идет прогон"
// @Failure 502 {object} models.ErrorResponse "Ошибка контроллера"
// @Router /hipot/voltage [post]
func (h *Handler) SetHipotVoltage(c *gin.Context) {
	var req models.SetVoltageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	if err := h.usecase.SetHipotVoltage(c.Request.Context(), *req.Voltage); err != nil {
		h.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: fmt.Sprintf("Voltage set to %gV", *req.Voltage)})
}

// CheckConnection проверяет связь с контроллером.
// @Summary Проверить связь с контроллером
// @Description Выполняет check_connection; "healthy" только при точном совпадении подтверждения.
// @Tags Connection
// @Produce json
// @Success 200 {object} models.ConnectionStatusResponse
// @Router /connection/check [post]
func (h *Handler) CheckConnection(c *gin.Context) {
	c.JSON(http.StatusOK, h.usecase.VerifyConnection(c.Request.Context()))
}
