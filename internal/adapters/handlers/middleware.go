package handlers

import (
	"net/http"
	"time"

	"github.com/iwtcode/hipotService/internal/middleware/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware журналирует запросы и присваивает каждому X-Request-ID.
// Успешные GET пишутся на уровне DEBUG: UI опрашивает статус стенда часто.
func LoggingMiddleware(parentLogger *logging.Logger) gin.HandlerFunc {
	logger := parentLogger.WithPrefix("HTTP")

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		if websocket.IsWebSocketUpgrade(c.Request) {
			logger.Info("Event stream upgrade requested",
				"request_id", requestID,
				"remote_addr", c.Request.RemoteAddr,
			)
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		case c.Request.Method == http.MethodGet:
			logger.Debug("Request completed", fields...)
		default:
			logger.Info("Request completed", fields...)
		}
	}
}
