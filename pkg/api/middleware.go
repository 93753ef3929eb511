package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/types"
)

// requestLogger logs each request and feeds the API metrics
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method).Observe(elapsed.Seconds())

		event := log.WithComponent("api").Info()
		if status >= 500 {
			event = log.WithComponent("api").Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("Request handled")
	}
}

// writeError maps the error taxonomy to HTTP statuses
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, types.ErrProvider), errors.Is(err, types.ErrRuntimeUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
