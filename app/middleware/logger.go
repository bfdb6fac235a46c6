package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"devtel/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

const maxLoggedBody = 1000

// Logger logs each request with latency, status and client address. POST
// bodies are compacted and truncated before logging so a large ingest
// batch does not flood the log.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var bodyStr string
		if c.Request.Method == http.MethodPost {
			bodyStr = requestBody(c)
		}

		c.Next()

		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		latency := time.Since(start)
		if bodyStr != "" {
			logger.InfoCtx(c.Request.Context(), "%3d | %13v | %15s | %s %s | body: %s",
				c.Writer.Status(), latency, c.ClientIP(), c.Request.Method, c.Request.RequestURI, bodyStr)
			return
		}
		logger.InfoCtx(c.Request.Context(), "%3d | %13v | %15s | %s %s",
			c.Writer.Status(), latency, c.ClientIP(), c.Request.Method, c.Request.RequestURI)
	}
}

// requestBody reads and restores the request body for logging.
func requestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return CompactBody(bodyBytes)
}

// CompactBody strips whitespace from a JSON body and truncates it for log
// output.
func CompactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	compacted := pretty.Ugly(body)
	if len(compacted) > maxLoggedBody {
		return string(compacted[:maxLoggedBody]) + "..."
	}
	return string(compacted)
}
