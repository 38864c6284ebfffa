package handlers

import (
	"net/http"

	"github.com/iwtcode/hipotService/internal/config"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler - структура для обработчиков HTTP-запросов
type Handler struct {
	usecase  interfaces.Usecases
	bus      *events.Bus
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler создает новый экземпляр Handler
func NewHandler(usecase interfaces.Usecases, bus *events.Bus, logger *logging.Logger) *Handler {
	return &Handler{
		usecase: usecase,
		bus:     bus,
		logger:  logger.WithPrefix("HANDLER"),
		upgrader: websocket.Upgrader{
			// операторский UI работает в локальной сети стенда
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// ProvideRouter настраивает и возвращает HTTP-роутер
func ProvideRouter(h *Handler, cfg *config.AppConfig) http.Handler {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// Logger Middleware
	router.Use(LoggingMiddleware(h.logger))

	// Группа API v1
	v1 := router.Group("/api/v1")
	{
		batch := v1.Group("/batch")
		{
			batch.POST("", h.ConfirmBatch)
			batch.DELETE("", h.ClearBatch)
		}

		relays := v1.Group("/relays")
		{
			relays.POST("", h.SetRelays)
			relays.POST("/default", h.SelectDefaultRelay)
		}

		v1.POST("/hipot/voltage", h.SetHipotVoltage)
		v1.POST("/connection/check", h.CheckConnection)

		tests := v1.Group("/tests")
		{
			tests.POST("/start", h.StartTests)
			tests.POST("/stop", h.StopTests)
			tests.GET("/results", h.GetResults)
			tests.GET("/status", h.GetStatus)
		}

		serial := v1.Group("/serial")
		{
			serial.POST("", h.SubmitSerial)
			serial.DELETE("", h.CancelSerial)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("", h.ListRuns)
			runs.GET("/:id", h.GetRun)
		}

		v1.GET("/events", h.StreamEvents)
	}

	return router
}
