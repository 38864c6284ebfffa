package handlers

import (
	"context"
	"net/http"

	"github.com/iwtcode/hipotService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// StartTests запускает последовательность испытаний.
// @Summary Запустить испытания
// @Description Проверяет информацию о партии и связь с контроллером, затем запускает прогон в фоне.
// @Tags Tests
// @Produce json
// @Success 202 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Прогон уже идет или нет информации о партии"
// @Router /tests/start [post]
func (h *Handler) StartTests(c *gin.Context) {
	// прогон живет дольше HTTP-запроса
	if err := h.usecase.StartTests(context.WithoutCancel(c.Request.Context())); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.MessageResponse{Status: "ok", Message: "Test sequence started"})
}

// StopTests запрашивает остановку прогона.
// @Summary Остановить испытания
// @Tags Tests
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Прогон не запущен"
// @Router /tests/stop [post]
func (h *Handler) StopTests(c *gin.Context) {
	if err := h.usecase.StopTests(); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Stop requested"})
}

// GetResults возвращает результаты текущего или последнего прогона.
// @Summary Результаты подтестов
// @Tags Tests
// @Produce json
// @Success 200 {array} models.SubTestResult
// @Router /tests/results [get]
func (h *Handler) GetResults(c *gin.Context) {
	results := h.usecase.GetResults()
	if results == nil {
		results = []models.SubTestResult{}
	}
	c.JSON(http.StatusOK, results)
}

// GetStatus возвращает снимок состояния стенда.
// @Summary Состояние стенда
// @Tags Tests
// @Produce json
// @Success 200 {object} models.RunStatus
// @Router /tests/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.usecase.GetStatus())
}

// SubmitSerial передает серийный номер, введенный оператором.
// @Summary Ввести серийный номер
// @Tags Serial
// @Accept json
// @Produce json
// @Param input body models.SerialNumberRequest true "Серийный номер"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Пустой номер"
// @Failure 409 {object} models.ErrorResponse "Номер не запрашивался"
// @Router /serial [post]
func (h *Handler) SubmitSerial(c *gin.Context) {
	var req models.SerialNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	if err := h.usecase.SubmitSerial(req.SerialNumber); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Serial number accepted"})
}

// CancelSerial отменяет ввод серийного номера; прогон прерывается.
// @Summary Отменить ввод серийного номера
// @Tags Serial
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Номер не запрашивался"
// @Router /serial [delete]
func (h *Handler) CancelSerial(c *gin.Context) {
	if err := h.usecase.CancelSerial(); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Serial number entry cancelled"})
}
