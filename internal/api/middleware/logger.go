package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ureshii/partner/internal/logger"
)

// Logger returns a Gin middleware that injects a request-scoped logger
// carrying a generated request ID, and logs request completion.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := uuid.New().String()

		ctx := logger.WithFields(c.Request.Context(), logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: latency.Milliseconds(),
		}).Infof("Request completed: method=%s, path=%s, client_ip=%s",
			c.Request.Method, path, c.ClientIP())
	}
}
