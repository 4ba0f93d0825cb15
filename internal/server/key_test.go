package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

func TestIssueKeyRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)

	digest := core.HashSecret([]byte(testSecret))
	view := env.issueKey(t, id, issueKeyRequest{
		KeyIndex: 0,
		Name:     "checkout",
		Scopes:   []string{"read", "write"},
	})

	assert.Equal(t, uint16(0), view.KeyIndex)
	assert.Equal(t, "checkout", view.Name)
	assert.Equal(t, "active", view.Status)
	assert.Equal(t, uint32(5), view.RateLimit, "inherits the project default")
	assert.Equal(t, adminPrincipal.String(), view.IssuedBy)

	// The stored digest never appears in a response.
	rec := env.do(t, http.MethodGet, keyPath(id, 0, ""), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), digest.String())
	assert.NotContains(t, rec.Body.String(), "key_hash")

	var got keyWithUsage
	decodeJSON(t, rec, &got)
	assert.Equal(t, view.Address, got.Key.Address)
	require.NotNil(t, got.Usage, "issue opens a usage window")
	assert.Equal(t, uint32(0), got.Usage.RequestCount)
}

func TestIssueKeyOutOfSequence(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)

	rec := env.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/keys", adminToken, issueKeyRequest{
		KeyIndex: 3,
		KeyHash:  core.HashSecret([]byte(testSecret)).String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sequence", errorCode(t, rec))
}

func TestIssueKeyRequiresHash(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)

	rec := env.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/keys", adminToken, issueKeyRequest{
		Name: "no hash",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/v1/projects/"+id.String()+"/keys", adminToken, issueKeyRequest{
		KeyHash: "abcd",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueKeyProjectMissing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/projects/"+testProjectID(0x77).String()+"/keys", adminToken, issueKeyRequest{
		KeyHash: core.HashSecret([]byte(testSecret)).String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueKeyUnauthorized(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)

	// The other principal addresses the admin's project explicitly but
	// is not its authority.
	rec := env.do(t, http.MethodPost,
		"/v1/projects/"+id.String()+"/keys?owner="+adminPrincipal.String(),
		otherToken, issueKeyRequest{
			KeyHash: core.HashSecret([]byte(testSecret)).String(),
		})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestRotateKeyRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)
	env.issueKey(t, id, issueKeyRequest{})

	rec := env.do(t, http.MethodPost, keyPath(id, 0, "rotate"), adminToken, rotateKeyRequest{
		NewKeyHash: core.HashSecret([]byte("fresh-secret")).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var view keyView
	decodeJSON(t, rec, &view)
	assert.Equal(t, uint64(0), view.TotalVerifications)
	assert.Equal(t, uint8(0), view.FailedVerifications)
	assert.Nil(t, view.ExpiresAt)

	rec = env.do(t, http.MethodPost, keyPath(id, 0, "rotate"), adminToken, rotateKeyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorCode(t, rec))
}

func TestUpdateScopesRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)
	env.issueKey(t, id, issueKeyRequest{Scopes: []string{"read"}})

	rec := env.do(t, http.MethodPut, keyPath(id, 0, "scopes"), adminToken, updateScopesRequest{
		Scopes: []string{"read", "write", "admin"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var view keyView
	decodeJSON(t, rec, &view)
	assert.Equal(t, []string{"read", "write", "admin"}, view.Scopes)
}

func TestUpdateRateLimitRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)
	env.issueKey(t, id, issueKeyRequest{})

	rec := env.do(t, http.MethodPut, keyPath(id, 0, "rate-limit"), adminToken, updateRateLimitRequest{
		RateLimit: 200,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var view keyView
	decodeJSON(t, rec, &view)
	assert.Equal(t, uint32(200), view.RateLimit)

	rec = env.do(t, http.MethodPut, keyPath(id, 0, "rate-limit"), adminToken, updateRateLimitRequest{
		RateLimit: 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKeyStatusTransitions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)
	env.issueKey(t, id, issueKeyRequest{})

	var view keyView

	rec := env.do(t, http.MethodPost, keyPath(id, 0, "suspend"), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &view)
	assert.Equal(t, "suspended", view.Status)

	rec = env.do(t, http.MethodPost, keyPath(id, 0, "reactivate"), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &view)
	assert.Equal(t, "active", view.Status)

	rec = env.do(t, http.MethodPost, keyPath(id, 0, "revoke"), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &view)
	assert.Equal(t, "revoked", view.Status)

	// Revocation is terminal.
	rec = env.do(t, http.MethodPost, keyPath(id, 0, "reactivate"), adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "state", errorCode(t, rec))
}

func TestCloseUsageRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)
	env.issueKey(t, id, issueKeyRequest{})

	rec := env.do(t, http.MethodDelete, keyPath(id, 0, "usage"), adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, "body: %s", rec.Body.String())

	var got keyWithUsage
	rec = env.do(t, http.MethodGet, keyPath(id, 0, ""), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &got)
	assert.Nil(t, got.Usage, "closed window is gone")

	rec = env.do(t, http.MethodDelete, keyPath(id, 0, "usage"), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "close is not idempotent")
}

func TestKeyIndexParam(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := testProjectID(0x10)
	env.createProject(t, id, 5)

	rec := env.do(t, http.MethodGet, "/v1/projects/"+id.String()+"/keys/abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/v1/projects/"+id.String()+"/keys/70000", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
