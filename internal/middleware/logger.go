package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

// Logger logs every request and records its latency. The route template is used as the
// path label so IDs do not explode cardinality.
func Logger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	log = log.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if m != nil {
			labels := []string{c.Request.Method, route, strconv.Itoa(status)}
			m.RequestDuration.WithLabelValues(labels...).Observe(latency.Seconds())
			m.RequestsTotal.WithLabelValues(labels...).Inc()
		}

		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		}
		if actor, ok := ActorFrom(c); ok {
			fields = append(fields, "user_id", actor.UserID, "role", string(actor.Role))
		}

		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(err, "server error", fields...)
		case status >= 400:
			log.Warn("client error", append(fields, "error", c.Errors.String())...)
		default:
			log.Info("request processed", fields...)
		}
	}
}
