//go:build functional
// +build functional

package functional

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// Request payloads of the daemon's JSON API.

type createProjectRequest struct {
	ProjectID        string `json:"project_id"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	DefaultRateLimit uint32 `json:"default_rate_limit"`
}

type transferRequest struct {
	NewAuthority string `json:"new_authority"`
}

type issueKeyRequest struct {
	KeyIndex  uint16   `json:"key_index"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"key_hash"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresAt *uint64  `json:"expires_at,omitempty"`
	RateLimit *uint32  `json:"rate_limit,omitempty"`
}

type rotateKeyRequest struct {
	NewKeyHash   string  `json:"new_key_hash"`
	NewExpiresAt *uint64 `json:"new_expires_at,omitempty"`
}

type updateScopesRequest struct {
	Scopes []string `json:"scopes"`
}

type updateRateLimitRequest struct {
	RateLimit uint32 `json:"rate_limit"`
}

type verifyRequest struct {
	Owner     string  `json:"owner"`
	ProjectID string  `json:"project_id"`
	KeyIndex  uint16  `json:"key_index"`
	Digest    string  `json:"digest,omitempty"`
	Key       string  `json:"key,omitempty"`
	Scope     *string `json:"scope,omitempty"`
}

// Response documents of the daemon's JSON API.

type projectDoc struct {
	Address          string `json:"address"`
	Authority        string `json:"authority"`
	ProjectID        string `json:"project_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	DefaultRateLimit uint32 `json:"default_rate_limit"`
	TotalKeys        uint16 `json:"total_keys"`
	ActiveKeys       uint16 `json:"active_keys"`
	CreatedAt        uint64 `json:"created_at"`
}

type keyDoc struct {
	Address             string   `json:"address"`
	Project             string   `json:"project"`
	IssuedBy            string   `json:"issued_by"`
	KeyIndex            uint16   `json:"key_index"`
	Name                string   `json:"name"`
	Scopes              []string `json:"scopes"`
	Status              string   `json:"status"`
	ExpiresAt           *uint64  `json:"expires_at"`
	RateLimit           uint32   `json:"rate_limit"`
	CreatedAt           uint64   `json:"created_at"`
	LastVerifiedAt      *uint64  `json:"last_verified_at"`
	TotalVerifications  uint64   `json:"total_verifications"`
	FailedVerifications uint8    `json:"failed_verifications"`
}

type usageDoc struct {
	WindowStart  uint64 `json:"window_start"`
	RequestCount uint32 `json:"request_count"`
	LastUsedAt   uint64 `json:"last_used_at"`
}

type keyWithUsageDoc struct {
	Key   keyDoc    `json:"key"`
	Usage *usageDoc `json:"usage"`
}

type verifyDoc struct {
	Verified     bool     `json:"verified"`
	KeyIndex     uint16   `json:"key_index"`
	Scopes       []string `json:"scopes"`
	RateLimit    uint32   `json:"rate_limit"`
	RequestCount uint32   `json:"request_count"`
	Slot         uint64   `json:"slot"`
}

// createProject provisions a project and returns its document.
func (c *apiClient) createProject(t *testing.T, id core.ProjectID, rateLimit uint32) projectDoc {
	t.Helper()

	var doc projectDoc
	status := c.doJSON(t, http.MethodPost, "/v1/projects", createProjectRequest{
		ProjectID:        id.String(),
		Name:             "payments",
		Description:      "keys for the payments backend",
		DefaultRateLimit: rateLimit,
	}, &doc)
	require.Equal(t, http.StatusCreated, status)
	return doc
}

// issueKey mints a key under the project and returns its document. The
// digest defaults to the hash of secret when KeyHash is unset.
func (c *apiClient) issueKey(t *testing.T, id core.ProjectID, secret string, req issueKeyRequest) keyDoc {
	t.Helper()

	if req.KeyHash == "" {
		req.KeyHash = core.HashSecret([]byte(secret)).String()
	}

	var doc keyDoc
	status := c.doJSON(t, http.MethodPost, "/v1/projects/"+id.String()+"/keys", req, &doc)
	require.Equal(t, http.StatusCreated, status)
	return doc
}

// getKey fetches a key together with its usage window.
func (c *apiClient) getKey(t *testing.T, id core.ProjectID, index uint16) keyWithUsageDoc {
	t.Helper()

	var doc keyWithUsageDoc
	status := c.doJSON(t, http.MethodGet, keyPath(id, index, ""), nil, &doc)
	require.Equal(t, http.StatusOK, status)
	return doc
}

// verify posts one verification request and returns the raw outcome.
func (c *apiClient) verify(t *testing.T, req verifyRequest) (int, []byte) {
	t.Helper()
	return c.do(t, http.MethodPost, "/v1/verify", req)
}

// verifyOK posts one verification request that must succeed.
func (c *apiClient) verifyOK(t *testing.T, req verifyRequest) verifyDoc {
	t.Helper()

	var doc verifyDoc
	status := c.doJSON(t, http.MethodPost, "/v1/verify", req, &doc)
	require.Equal(t, http.StatusOK, status)
	require.True(t, doc.Verified)
	return doc
}

func keyPath(id core.ProjectID, index uint16, suffix string) string {
	path := fmt.Sprintf("/v1/projects/%s/keys/%d", id, index)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}
