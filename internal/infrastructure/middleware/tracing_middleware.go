package middleware

import (
	"time"

	"catalogsync/pkg/logger"
	"catalogsync/pkg/tracing"
	"catalogsync/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// TracingMiddleware gives every status surface request a request id, a server span
// and a debug access log line carrying that id.
func TracingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	access := logger.NewContextLogger(log)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, requestID)

		ctx, span := tracing.TraceStatusRequest(c.Request.Context(), c.Request.Method, route, requestID)
		defer span.End()
		ctx = logger.WithRequestID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(tracing.StatusKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
		access.LogStatusRequest(ctx, c.Request.Method, route, status, time.Since(start).Milliseconds())
	}
}
