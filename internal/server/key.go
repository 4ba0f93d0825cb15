package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/service"
)

type issueKeyRequest struct {
	// KeyIndex must equal the project's current key count. The default
	// of zero matches the first issue; later issues read the count off
	// the project first.
	KeyIndex  uint16   `json:"key_index"`
	Name      string   `json:"name"`
	KeyHash   string   `json:"key_hash"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *uint64  `json:"expires_at"`
	RateLimit *uint32  `json:"rate_limit"`
}

func (s *Server) handleIssueKey(c *gin.Context) {
	caller, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return
	}

	var req issueKeyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	if req.KeyHash == "" {
		s.respondError(c, core.NewError(core.KindValidation, "key_hash is required"))
		return
	}
	keyHash, err := core.ParseDigest(req.KeyHash)
	if err != nil {
		s.respondError(c, err)
		return
	}

	key, err := s.service.IssueKey(c.Request.Context(), service.IssueKeyParams{
		Caller:            caller,
		Owner:             owner,
		ProjectID:         id,
		KeyIndex:          req.KeyIndex,
		Name:              req.Name,
		KeyHash:           keyHash,
		Scopes:            req.Scopes,
		ExpiresAt:         slotPtr(req.ExpiresAt),
		RateLimitOverride: req.RateLimit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newKeyView(key))
}

// keyWithUsage pairs a key with its live usage window. Usage is absent
// once the window has been closed.
type keyWithUsage struct {
	Key   keyView    `json:"key"`
	Usage *usageView `json:"usage,omitempty"`
}

func (s *Server) handleGetKey(c *gin.Context) {
	_, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return
	}
	index, ok := s.indexParam(c)
	if !ok {
		return
	}

	key, usage, err := s.service.GetKey(c.Request.Context(), owner, id, index)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, keyWithUsage{
		Key:   newKeyView(key),
		Usage: newUsageView(usage),
	})
}

type rotateKeyRequest struct {
	NewKeyHash string `json:"new_key_hash"`

	// NewExpiresAt replaces the expiry outright; absent clears it.
	NewExpiresAt *uint64 `json:"new_expires_at"`
}

func (s *Server) handleRotateKey(c *gin.Context) {
	caller, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return
	}
	index, ok := s.indexParam(c)
	if !ok {
		return
	}

	var req rotateKeyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	if req.NewKeyHash == "" {
		s.respondError(c, core.NewError(core.KindValidation, "new_key_hash is required"))
		return
	}
	newHash, err := core.ParseDigest(req.NewKeyHash)
	if err != nil {
		s.respondError(c, err)
		return
	}

	key, err := s.service.RotateKey(c.Request.Context(), service.RotateKeyParams{
		Caller:       caller,
		Owner:        owner,
		ProjectID:    id,
		KeyIndex:     index,
		NewKeyHash:   newHash,
		NewExpiresAt: slotPtr(req.NewExpiresAt),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newKeyView(key))
}

type updateScopesRequest struct {
	Scopes []string `json:"scopes"`
}

func (s *Server) handleUpdateScopes(c *gin.Context) {
	caller, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return
	}
	index, ok := s.indexParam(c)
	if !ok {
		return
	}

	var req updateScopesRequest
	if !s.bindJSON(c, &req) {
		return
	}

	key, err := s.service.UpdateScopes(c.Request.Context(), service.UpdateScopesParams{
		Caller:    caller,
		Owner:     owner,
		ProjectID: id,
		KeyIndex:  index,
		Scopes:    req.Scopes,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newKeyView(key))
}

type updateRateLimitRequest struct {
	RateLimit uint32 `json:"rate_limit"`
}

func (s *Server) handleUpdateRateLimit(c *gin.Context) {
	caller, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return
	}
	index, ok := s.indexParam(c)
	if !ok {
		return
	}

	var req updateRateLimitRequest
	if !s.bindJSON(c, &req) {
		return
	}

	key, err := s.service.UpdateRateLimit(c.Request.Context(), service.UpdateRateLimitParams{
		Caller:    caller,
		Owner:     owner,
		ProjectID: id,
		KeyIndex:  index,
		RateLimit: req.RateLimit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newKeyView(key))
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	s.handleKeyAction(c, s.service.RevokeKey)
}

func (s *Server) handleSuspendKey(c *gin.Context) {
	s.handleKeyAction(c, s.service.SuspendKey)
}

func (s *Server) handleReactivateKey(c *gin.Context) {
	s.handleKeyAction(c, s.service.ReactivateKey)
}

// handleKeyAction runs one of the bodyless status transitions.
func (s *Server) handleKeyAction(c *gin.Context, action func(ctx context.Context, p service.KeyActionParams) (*core.APIKey, error)) {
	params, ok := s.keyActionParams(c)
	if !ok {
		return
	}

	key, err := action(c.Request.Context(), params)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newKeyView(key))
}

func (s *Server) handleCloseUsage(c *gin.Context) {
	params, ok := s.keyActionParams(c)
	if !ok {
		return
	}

	if err := s.service.CloseUsage(c.Request.Context(), params); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// projectCoordinates resolves the caller and the project coordinates
// shared by every key route.
func (s *Server) projectCoordinates(c *gin.Context) (caller, owner core.Principal, id core.ProjectID, ok bool) {
	caller, ok = s.caller(c)
	if !ok {
		return
	}
	owner, ok = s.ownerParam(c, caller)
	if !ok {
		return
	}
	id, ok = s.projectIDParam(c)
	return
}

// keyActionParams resolves the full key coordinates for the bodyless
// routes.
func (s *Server) keyActionParams(c *gin.Context) (service.KeyActionParams, bool) {
	caller, owner, id, ok := s.projectCoordinates(c)
	if !ok {
		return service.KeyActionParams{}, false
	}
	index, ok := s.indexParam(c)
	if !ok {
		return service.KeyActionParams{}, false
	}
	return service.KeyActionParams{
		Caller:    caller,
		Owner:     owner,
		ProjectID: id,
		KeyIndex:  index,
	}, true
}

// slotPtr converts an optional wire slot into the domain form.
func slotPtr(v *uint64) *clock.Slot {
	if v == nil {
		return nil
	}
	s := clock.Slot(*v)
	return &s
}
