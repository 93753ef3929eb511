package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	})
}

// handleReady fails while the store is unreachable so orchestrators hold
// traffic during startup
func (s *Server) handleReady(c *gin.Context) {
	if _, err := s.manager.ListTasks(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
