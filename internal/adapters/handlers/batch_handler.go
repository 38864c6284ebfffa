package handlers

import (
	"net/http"

	"github.com/iwtcode/hipotService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// ConfirmBatch подтверждает информацию о партии.
// @Summary Подтвердить информацию о партии
// @Description Сохраняет номер заказа и номера партий материалов; без них запуск испытаний невозможен.
// @Tags Batch
// @Accept json
// @Produce json
// @Param input body models.BatchInfo true "Информация о партии"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Не заполнены поля"
// @Router /batch [post]
func (h *Handler) ConfirmBatch(c *gin.Context) {
	var req models.BatchInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid batch information")
		return
	}

	if err := h.usecase.ConfirmBatch(req); err != nil {
		h.Fail(c, err)
		return
	}

	h.logger.Info("Batch information confirmed", "work_order", req.WorkOrderNumber)
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Batch information confirmed"})
}

// ClearBatch сбрасывает информацию о партии.
// @Summary Сбросить информацию о партии
// @Tags Batch
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Router /batch [delete]
func (h *Handler) ClearBatch(c *gin.Context) {
	h.usecase.ClearBatch()
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Batch information cleared"})
}
