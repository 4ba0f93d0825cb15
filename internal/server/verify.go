package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/service"
)

type verifyRequest struct {
	Owner     string `json:"owner"`
	ProjectID string `json:"project_id"`
	KeyIndex  uint16 `json:"key_index"`

	// Digest is the presented digest in hex. Key is the raw secret,
	// hashed here before it touches anything else. Exactly one of the
	// two must be set.
	Digest string `json:"digest"`
	Key    string `json:"key"`

	// Scope, when set, must be granted by the key.
	Scope *string `json:"scope"`
}

type verifyResponse struct {
	Verified     bool       `json:"verified"`
	KeyIndex     uint16     `json:"key_index"`
	Scopes       []string   `json:"scopes,omitempty"`
	RateLimit    uint32     `json:"rate_limit"`
	RequestCount uint32     `json:"request_count"`
	Slot         clock.Slot `json:"slot"`
}

// handleVerify is the data plane. No caller authentication happens
// here; the digest comparison inside the domain is the authentication.
func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	owner, err := core.ParsePrincipal(req.Owner)
	if err != nil {
		s.respondError(c, err)
		return
	}
	id, err := core.ParseProjectID(req.ProjectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	digest, err := presentedDigest(req.Digest, req.Key)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.Verify(c.Request.Context(), service.VerifyParams{
		Owner:     owner,
		ProjectID: id,
		KeyIndex:  req.KeyIndex,
		Digest:    digest,
		Scope:     req.Scope,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		Verified:     true,
		KeyIndex:     result.KeyIndex,
		Scopes:       result.Scopes,
		RateLimit:    result.RateLimit,
		RequestCount: result.RequestCount,
		Slot:         result.Slot,
	})
}

// presentedDigest resolves the credential from the request.
func presentedDigest(digestHex, key string) (core.Digest, error) {
	switch {
	case digestHex != "" && key != "":
		return core.Digest{}, core.NewError(core.KindValidation, "digest and key are mutually exclusive")
	case digestHex != "":
		return core.ParseDigest(digestHex)
	case key != "":
		return core.HashSecret([]byte(key)), nil
	default:
		return core.Digest{}, core.NewError(core.KindValidation, "one of digest or key is required")
	}
}
