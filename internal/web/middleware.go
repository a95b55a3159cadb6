package web

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appLog "classboard/internal/log"
)

// requestLogger logs one line per request through the app logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"latency", time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.ByType(gin.ErrorTypePrivate).String())
		}

		switch {
		case status >= 500:
			appLog.Warn("request failed", kv...)
		case path == "/health":
		default:
			appLog.Debug("request", kv...)
		}
	}
}

// basicAuth guards every route except /health.
func basicAuth(username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="classboard", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
