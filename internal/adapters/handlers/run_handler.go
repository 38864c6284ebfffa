package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultRunsLimit = 50

// ListRuns возвращает историю прогонов.
// @Summary История прогонов
// @Description Без serial возвращает последние прогоны (limit, по умолчанию 50).
// @Tags Runs
// @Produce json
// @Param serial query string false "Серийный номер"
// @Param limit query int false "Количество записей"
// @Success 200 {array} entities.TestRun
// @Failure 503 {object} models.ErrorResponse "Хранилище отключено"
// @Router /runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, err, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.usecase.ListRuns(c.Query("serial"), limit)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun возвращает прогон по идентификатору.
// @Summary Прогон по ID
// @Tags Runs
// @Produce json
// @Param id path string true "ID прогона"
// @Success 200 {object} entities.TestRun
// @Failure 404 {object} models.ErrorResponse
// @Router /runs/{id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.usecase.GetRun(c.Param("id"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
