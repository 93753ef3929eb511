package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openclaw/openclaw/pkg/gateway"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/types"
)

// Server is the control-plane HTTP surface: task, capability and
// deployment endpoints backed by the manager, with the LLM gateway
// mounted under /api/llm
type Server struct {
	manager *manager.Manager
	gateway *gateway.Gateway
	engine  *gin.Engine
	http    *http.Server
}

// NewServer wires the router
func NewServer(mgr *manager.Manager, gw *gateway.Gateway) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.Use(cors.Default())

	s := &Server{manager: mgr, gateway: gw, engine: engine}
	s.routes()
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then drains in-flight
// requests
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	log.WithComponent("api").Info().Str("addr", addr).Msg("Control-plane API listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/api")

	tasks := api.Group("/tasks")
	tasks.POST("", s.handleCreateTask)
	tasks.GET("", s.handleListTasks)
	tasks.GET("/:id", s.handleGetTask)
	for _, action := range []string{"start", "pause", "resume", "complete", "fail", "cancel"} {
		action := action
		tasks.POST("/:id/"+action, func(c *gin.Context) { s.transitionTask(c, action) })
	}
	tasks.POST("/:id/outputs", s.handleAppendOutput)
	tasks.GET("/:id/outputs", s.handleListOutputs)
	tasks.POST("/:id/messages", s.handleCreateMessage)
	tasks.GET("/:id/messages", s.handleListMessages)
	tasks.POST("/:id/continue", s.handleContinueTask)
	tasks.GET("/:id/dockerfiles", s.handleDockerfiles)
	tasks.GET("/:id/execution-timeline", s.handleTimeline)
	tasks.GET("/:id/current-state", s.handleCurrentState)
	tasks.GET("/:id/audit", s.handleAudit)

	caps := api.Group("/capabilities/requests")
	caps.POST("", s.handleCreateCapabilityRequest)
	caps.GET("", s.handleListCapabilityRequests)
	caps.GET("/:id", s.handleGetCapabilityRequest)
	caps.POST("/:id/review", s.handleReviewCapability)

	deployments := api.Group("/deployments")
	deployments.POST("", s.handleCreateDeployment)
	deployments.GET("", s.handleListDeployments)
	deployments.GET("/:id", s.handleGetDeployment)
	deployments.PATCH("/:id", s.handlePatchDeployment)
	deployments.POST("/:id/approve", s.handleApproveDeployment)
	deployments.POST("/:id/start", s.handleStartDeployment)
	deployments.POST("/:id/stop", s.handleStopDeployment)

	if s.gateway != nil {
		s.gateway.Register(api.Group("/llm"))
	}
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var input manager.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	task, err := s.manager.CreateTask(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.manager.ListTasks()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.manager.GetTask(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) transitionTask(c *gin.Context, action string) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body) // reason is optional

	task, err := s.manager.TransitionTask(c.Param("id"), action, body.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleAppendOutput(c *gin.Context) {
	var output types.TaskOutput
	if err := c.ShouldBindJSON(&output); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid output body: " + err.Error()})
		return
	}

	stored, err := s.manager.AppendOutput(c.Param("id"), &output)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListOutputs(c *gin.Context) {
	outputs, err := s.manager.ListOutputs(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outputs)
}

func (s *Server) handleCreateMessage(c *gin.Context) {
	var msg types.TaskMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body: " + err.Error()})
		return
	}

	stored, err := s.manager.CreateMessage(c.Param("id"), &msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListMessages(c *gin.Context) {
	messages, err := s.manager.ListMessages(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleContinueTask(c *gin.Context) {
	var body struct {
		FollowUp string `json:"follow_up"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	task, err := s.manager.ContinueTask(c.Request.Context(), c.Param("id"), body.FollowUp)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDockerfiles(c *gin.Context) {
	versions, err := s.manager.Dockerfiles(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dockerfiles": versions})
}

func (s *Server) handleTimeline(c *gin.Context) {
	entries, err := s.manager.Timeline(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

func (s *Server) handleCurrentState(c *gin.Context) {
	state, err := s.manager.State(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleAudit(c *gin.Context) {
	entries, err := s.manager.AuditTrail(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": entries})
}
