package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/types"
)

func (s *Server) handleCreateCapabilityRequest(c *gin.Context) {
	var req types.CapabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	stored, err := s.manager.CreateCapabilityRequest(&req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListCapabilityRequests(c *gin.Context) {
	requests, err := s.manager.ListCapabilityRequests(
		c.Query("task_id"), types.RequestStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func capabilityID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request id must be numeric"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetCapabilityRequest(c *gin.Context) {
	id, ok := capabilityID(c)
	if !ok {
		return
	}
	req, err := s.manager.GetCapabilityRequest(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleReviewCapability(c *gin.Context) {
	id, ok := capabilityID(c)
	if !ok {
		return
	}

	var input manager.ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review body: " + err.Error()})
		return
	}

	req, err := s.manager.ReviewCapability(c.Request.Context(), id, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleCreateDeployment(c *gin.Context) {
	var input manager.CreateDeploymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deployment body: " + err.Error()})
		return
	}

	dep, err := s.manager.CreateDeployment(input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

func (s *Server) handleListDeployments(c *gin.Context) {
	deployments, err := s.manager.ListDeployments(
		c.Query("task_id"), types.DeploymentStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deployments})
}

func (s *Server) handleGetDeployment(c *gin.Context) {
	dep, err := s.manager.GetDeployment(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handlePatchDeployment(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patch body: " + err.Error()})
		return
	}

	dep, err := s.manager.PatchDeployment(c.Param("id"), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handleApproveDeployment(c *gin.Context) {
	var body struct {
		Approved bool   `json:"approved"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid approval body: " + err.Error()})
		return
	}

	dep, err := s.manager.ApproveDeployment(c.Request.Context(), c.Param("id"), body.Approved, body.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handleStartDeployment(c *gin.Context) {
	dep, err := s.manager.StartDeployment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dep)
}

func (s *Server) handleStopDeployment(c *gin.Context) {
	dep, err := s.manager.StopDeployment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dep)
}
