package builder

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openclaw/openclaw/pkg/types"
)

// BuildRequest is the body of POST /build
type BuildRequest struct {
	TaskID       string             `json:"task_id" binding:"required"`
	BaseImage    string             `json:"base_image"`
	Capabilities []types.Capability `json:"capabilities" binding:"required"`
}

// DeploymentBuildRequest is the body of POST /build-deployment
type DeploymentBuildRequest struct {
	DeploymentID string   `json:"deployment_id" binding:"required"`
	TaskID       string   `json:"task_id" binding:"required"`
	Entrypoint   string   `json:"entrypoint"`
	Port         int      `json:"port"`
	PipPackages  []string `json:"pip_packages"`
}

// BuildResponse acknowledges a queued build
type BuildResponse struct {
	BuildID  string `json:"build_id"`
	TaskID   string `json:"task_id"`
	ImageTag string `json:"image_tag"`
	Status   string `json:"status"`
	LogURL   string `json:"log_url,omitempty"`
}

// Router returns the builder HTTP surface
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/build", s.handleBuild)
	router.POST("/build-deployment", s.handleBuildDeployment)
	router.GET("/builds/:id", s.handleBuildStatus)
	router.GET("/builds/:id/logs", s.handleBuildLogs)
	router.GET("/health", s.handleHealth)

	return router
}

func (s *Service) handleBuild(c *gin.Context) {
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	build := s.StartAgentBuild(req.TaskID, req.BaseImage, req.Capabilities)
	c.JSON(http.StatusOK, BuildResponse{
		BuildID:  build.ID,
		TaskID:   req.TaskID,
		ImageTag: build.ImageTag,
		Status:   string(build.Status),
		LogURL:   "/builds/" + build.ID + "/logs",
	})
}

func (s *Service) handleBuildDeployment(c *gin.Context) {
	var req DeploymentBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Entrypoint == "" {
		req.Entrypoint = "python app.py"
	}
	if req.Port == 0 {
		req.Port = 5000
	}

	build := s.StartDeploymentBuild(req.DeploymentID, req.TaskID, req.Entrypoint, req.Port, req.PipPackages)
	c.JSON(http.StatusOK, BuildResponse{
		BuildID:  build.ID,
		TaskID:   req.TaskID,
		ImageTag: build.ImageTag,
		Status:   string(build.Status),
		LogURL:   "/builds/" + build.ID + "/logs",
	})
}

func (s *Service) handleBuildStatus(c *gin.Context) {
	build, err := s.builds.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"build_id":  build.ID,
		"status":    build.Status,
		"image_tag": build.ImageTag,
		"digest":    build.Digest,
		"error":     build.Error,
		"logs":      strings.Join(build.Logs, ""),
	})
}

func (s *Service) handleBuildLogs(c *gin.Context) {
	build, err := s.builds.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"build_id": build.ID,
		"logs":     strings.Join(build.Logs, ""),
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	dockerConnected := false
	if s.runtime != nil {
		if _, err := s.runtime.UsedHostPorts(c.Request.Context()); err == nil {
			dockerConnected = true
		}
	}
	status := "healthy"
	code := http.StatusOK
	if !dockerConnected {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":           status,
		"service":          "image-builder",
		"docker_connected": dockerConnected,
	})
}
