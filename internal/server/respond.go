package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/identity"
	"github.com/vyrodovalexey/avkeyd/internal/middleware"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// errorStatus maps a failed operation to its HTTP status. Domain kinds
// take precedence; storage sentinels cover records that are missing or
// already present; everything else is an internal failure.
func errorStatus(err error) int {
	switch core.KindOf(err) {
	case core.KindUnauthorized, core.KindAuthFailure:
		return http.StatusUnauthorized
	case core.KindScopeDenied:
		return http.StatusForbidden
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindValidation, core.KindSequence, core.KindTemporal:
		return http.StatusBadRequest
	case core.KindCapacity, core.KindState:
		return http.StatusConflict
	case core.KindOwnership:
		return http.StatusNotFound
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorLabel returns the machine-readable code carried in the error
// envelope.
func errorLabel(err error) string {
	if kind := core.KindOf(err); kind != core.KindUnknown {
		return kind.String()
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrAlreadyExists):
		return "already_exists"
	default:
		return "internal"
	}
}

// respondError writes the error envelope for a failed operation.
// Domain refusals pass their message through; internal failures are
// logged and masked.
func (s *Server) respondError(c *gin.Context, err error) {
	status := errorStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			observability.Error(err),
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.String("request_id", middleware.GetRequestID(c)),
		)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   errorLabel(err),
		"message": message,
	})
}

// bindJSON decodes the request body into v and responds on failure.
func (s *Server) bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "validation",
			"message": fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
		})
		return false
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "validation",
		"message": "invalid request body: " + err.Error(),
	})
	return false
}

// caller returns the principal the auth middleware attached. A miss
// means the route is wired outside the authenticated group.
func (s *Server) caller(c *gin.Context) (core.Principal, bool) {
	principal, ok := identity.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "no principal on request",
		})
		return core.Principal{}, false
	}
	return principal, true
}

// ownerParam resolves the owner coordinate of the addressed project:
// the owner query parameter when present, otherwise the caller itself.
func (s *Server) ownerParam(c *gin.Context, caller core.Principal) (core.Principal, bool) {
	raw := c.Query("owner")
	if raw == "" {
		return caller, true
	}
	owner, err := core.ParsePrincipal(raw)
	if err != nil {
		s.respondError(c, err)
		return core.Principal{}, false
	}
	return owner, true
}

// projectIDParam parses the project_id path segment.
func (s *Server) projectIDParam(c *gin.Context) (core.ProjectID, bool) {
	id, err := core.ParseProjectID(c.Param("project_id"))
	if err != nil {
		s.respondError(c, err)
		return core.ProjectID{}, false
	}
	return id, true
}

// indexParam parses the key index path segment.
func (s *Server) indexParam(c *gin.Context) (uint16, bool) {
	raw := c.Param("index")
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		s.respondError(c, core.NewError(core.KindValidation,
			fmt.Sprintf("invalid key index %q", raw)))
		return 0, false
	}
	return uint16(v), true
}
