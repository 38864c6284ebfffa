package handlers

import (
	"net/http"

	"github.com/iwtcode/hipotService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// SelectDefaultRelay выбирает активный релейный модуль.
// @Summary Выбрать релейный модуль
// @Description "Electromechanical" - удаленный банк, "Solid State" - резервный локальный банк.
// @Tags Relays
// @Accept json
// @Produce json
// @Param input body models.RelaySelectionRequest true "Имя модуля"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Неизвестный модуль"
// @Router /relays/default [post]
func (h *Handler) SelectDefaultRelay(c *gin.Context) {
	var req models.RelaySelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	if err := h.usecase.SelectDefaultRelay(req.SelectedRelay); err != nil {
		h.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Relay module selected: " + req.SelectedRelay})
}

// SetRelays вручную замыкает или размыкает реле.
// @Summary Управление реле
// @Description Индексы 0..7; state - true/false или "open"/"closed"; timeout_ms > 0 взводит таймер безопасности.
// @Tags Relays
// @Accept json
// @Produce json
// @Param input body models.SetRelaysRequest true "Команда реле"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Неверные индексы или состояние"
// @Failure 409 {object} models.ErrorResponse "Идет прогон"
// @Failure 502 {object} models.ErrorResponse "Ошибка контроллера"
// @Router /relays [post]
func (h *Handler) SetRelays(c *gin.Context) {
	var req models.SetRelaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	if err := h.usecase.SetRelays(c.Request.Context(), req); err != nil {
		h.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "relays": h.usecase.GetStatus().Relays})
}
