package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"termpool/pkg/logger"
)

// RequestIDHeader carries the trace id in and out
const RequestIDHeader = "X-Request-ID"

const maxLoggedBody = 1000

// Logger access log through zap; attaches a trace id to the request context
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(RequestIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))
		c.Header(RequestIDHeader, traceID)

		var body string
		if c.Request.Method == http.MethodPost {
			body = getRequestBody(c)
		}

		c.Next()

		status := c.Writer.Status()
		if status == http.StatusNotFound {
			return
		}

		fields := []zap.Field{
			zap.String("trace_id", traceID),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.RequestURI),
		}
		if body != "" {
			fields = append(fields, zap.String("body", body))
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("[GIN]", fields...)
			return
		}
		logger.Info("[GIN]", fields...)
	}
}

// getRequestBody reads the body and puts it back for the handler
func getRequestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(data))
	return CompressBody(string(data))
}

// CompressBody strips JSON whitespace and truncates long bodies
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}
	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > maxLoggedBody {
		return string(compressed[:maxLoggedBody]) + "..."
	}
	return string(compressed)
}
