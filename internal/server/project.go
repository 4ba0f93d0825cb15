package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/service"
)

type createProjectRequest struct {
	ProjectID        string `json:"project_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	DefaultRateLimit uint32 `json:"default_rate_limit"`
}

// handleCreateProject creates a project owned by the caller. The owner
// query parameter is ignored here: a principal can only create under
// its own address space.
func (s *Server) handleCreateProject(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req createProjectRequest
	if !s.bindJSON(c, &req) {
		return
	}

	id, err := core.ParseProjectID(req.ProjectID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	project, err := s.service.CreateProject(c.Request.Context(), service.CreateProjectParams{
		Caller:           caller,
		ProjectID:        id,
		Name:             req.Name,
		Description:      req.Description,
		DefaultRateLimit: req.DefaultRateLimit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newProjectView(project))
}

func (s *Server) handleGetProject(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(c, caller)
	if !ok {
		return
	}
	id, ok := s.projectIDParam(c)
	if !ok {
		return
	}

	project, err := s.service.GetProject(c.Request.Context(), owner, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProjectView(project))
}

type transferRequest struct {
	NewAuthority string `json:"new_authority"`
}

func (s *Server) handleTransferAuthority(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(c, caller)
	if !ok {
		return
	}
	id, ok := s.projectIDParam(c)
	if !ok {
		return
	}

	var req transferRequest
	if !s.bindJSON(c, &req) {
		return
	}

	newAuthority, err := core.ParsePrincipal(req.NewAuthority)
	if err != nil {
		s.respondError(c, err)
		return
	}

	project, err := s.service.TransferAuthority(c.Request.Context(), service.TransferParams{
		Caller:       caller,
		Owner:        owner,
		ProjectID:    id,
		NewAuthority: newAuthority,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProjectView(project))
}
