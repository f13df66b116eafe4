package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request. Successful requests go to debug, metrics
// scrapes to trace since they arrive every few seconds for hours.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := time.Since(start).Round(time.Millisecond)
		statusCode := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": max(c.Writer.Size(), 0),
		})

		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}

		msg := fmt.Sprintf("%s %s %d (%s)", c.Request.Method, path, statusCode, latency)
		switch level := requestLevel(path, statusCode); level {
		case logrus.ErrorLevel:
			entry.Error(msg)
		case logrus.WarnLevel:
			entry.Warn(msg)
		case logrus.TraceLevel:
			entry.Trace(msg)
		default:
			entry.Debug(msg)
		}
	}
}

func requestLevel(path string, statusCode int) logrus.Level {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case statusCode >= http.StatusBadRequest:
		return logrus.WarnLevel
	case path == "/metrics":
		return logrus.TraceLevel
	default:
		return logrus.DebugLevel
	}
}
