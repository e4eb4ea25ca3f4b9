package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id; an incoming value is kept, otherwise one is generated.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the gin context key of the request id.
const ContextRequestID = "request_id"

// quietPaths are polled by probes and scrapers and logged at debug level.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logger logs one line per request. 5xx responses log at error level, 4xx at warn.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		}
		if who, ok := CurrentIdentity(c); ok {
			fields = append(fields, zap.String("user_id", who.UserID.String()))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		case quietPaths[c.Request.URL.Path]:
			logger.Debug("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
