package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/delegate/internal/agent"
)

// spawnRequest is the POST /tasks body.
type spawnRequest struct {
	Instructions string `json:"instructions"`
	Input        string `json:"input"`
	TimeoutMs    int64  `json:"timeoutMs"`
}

func (r spawnRequest) toAgent() agent.SpawnRequest {
	return agent.SpawnRequest{
		Instructions: r.Instructions,
		Input:        r.Input,
		Timeout:      time.Duration(r.TimeoutMs) * time.Millisecond,
	}
}

// taskView adds millisecond fields to a task for HTTP clients.
type taskView struct {
	agent.Task
	TimeoutMs  int64 `json:"timeoutMs"`
	DurationMs int64 `json:"durationMs,omitempty"`
}

func viewOf(task agent.Task) taskView {
	return taskView{
		Task:       task,
		TimeoutMs:  task.Timeout.Milliseconds(),
		DurationMs: task.Duration().Milliseconds(),
	}
}

func viewsOf(tasks []agent.Task) []taskView {
	out := make([]taskView, len(tasks))
	for i, task := range tasks {
		out[i] = viewOf(task)
	}
	return out
}

// httpStatus maps an error code to the response status. Execution outcomes
// are reported with 200 and a non-success body.
func httpStatus(code agent.ErrorCode) int {
	switch code {
	case agent.CodeNoExecutor:
		return http.StatusServiceUnavailable
	case agent.CodeConcurrencyLimit:
		return http.StatusTooManyRequests
	case agent.CodeInvalidInstructions:
		return http.StatusBadRequest
	case agent.CodeTaskNotFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

func abortWithError(c *gin.Context, status int, code agent.ErrorCode, msg string) {
	body := gin.H{"error": msg}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"executor": s.orch.HasExecutor(),
		"running":  s.orch.Running(),
	})
}

func (s *Server) spawn(c *gin.Context) {
	var body spawnRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}
	if body.TimeoutMs < 0 {
		abortWithError(c, http.StatusBadRequest, "", "timeoutMs must not be negative")
		return
	}

	if c.Query("async") == "true" {
		task, _, err := s.orch.Start(s.background, body.toAgent())
		if err != nil {
			s.rejected(c, err)
			return
		}
		c.JSON(http.StatusAccepted, viewOf(task))
		return
	}

	// The request context governs the task: a client that disconnects
	// cancels it.
	res, err := s.orch.Spawn(c.Request.Context(), body.toAgent())
	if err != nil && res.TaskID == "" {
		s.rejected(c, err)
		return
	}
	c.JSON(httpStatus(res.Code), res)
}

func (s *Server) rejected(c *gin.Context, err error) {
	code := agent.CodeOf(err)
	var aerr *agent.Error
	msg := err.Error()
	if errors.As(err, &aerr) {
		msg = aerr.Message
	}
	c.AbortWithStatusJSON(httpStatus(code), agent.Result{Code: code, Error: msg})
}

func (s *Server) list(c *gin.Context) {
	raw := c.Query("status")
	if raw == "" {
		c.JSON(http.StatusOK, gin.H{"tasks": viewsOf(s.orch.List())})
		return
	}
	status, err := agent.ParseStatus(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": viewsOf(s.orch.ListByStatus(status))})
}

func (s *Server) get(c *gin.Context) {
	task, ok := s.orch.Get(c.Param("id"))
	if !ok {
		abortWithError(c, http.StatusNotFound, agent.CodeTaskNotFound, agent.ErrTaskNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, viewOf(task))
}

func (s *Server) cancel(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.orch.Get(id); !ok {
		abortWithError(c, http.StatusNotFound, agent.CodeTaskNotFound, agent.ErrTaskNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": s.orch.Cancel(id)})
}

func (s *Server) cancelAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": s.orch.CancelAll()})
}

func (s *Server) clear(c *gin.Context) {
	switch c.DefaultQuery("scope", "finished") {
	case "finished":
		c.JSON(http.StatusOK, gin.H{"removed": s.orch.ClearFinished()})
	case "all":
		removed := s.orch.Len()
		s.orch.ClearAll()
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	default:
		abortWithError(c, http.StatusBadRequest, "", "scope must be finished or all")
	}
}

func (s *Server) summary(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Summary())
}
