//go:build functional
// +build functional

package functional

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// ============================================================================
// Project and Key Lifecycle Tests
// ============================================================================

func TestFunctional_Lifecycle_ProjectAndKeys(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	d := suite.StartDaemon()
	admin := d.Client(adminToken)
	projectID := fillProjectID(0x21)

	// Provision the project and issue two keys in sequence.
	project := admin.createProject(t, projectID, 100)
	assert.Equal(t, adminPrincipal.String(), project.Authority)
	assert.Equal(t, uint16(0), project.TotalKeys)

	key0 := admin.issueKey(t, projectID, "checkout-secret", issueKeyRequest{
		KeyIndex: 0,
		Name:     "checkout",
		Scopes:   []string{"payments:read", "payments:write"},
	})
	assert.Equal(t, "active", key0.Status)
	assert.Equal(t, uint32(100), key0.RateLimit, "key inherits the project default")

	key1 := admin.issueKey(t, projectID, "reporting-secret", issueKeyRequest{
		KeyIndex: 1,
		Name:     "reporting",
		Scopes:   []string{"payments:read"},
	})
	assert.Equal(t, uint16(1), key1.KeyIndex)

	var updated projectDoc
	status := admin.doJSON(t, http.MethodGet, "/v1/projects/"+projectID.String(), nil, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint16(2), updated.TotalKeys)
	assert.Equal(t, uint16(2), updated.ActiveKeys)

	// The fresh key starts with an open usage window at the current slot.
	withUsage := admin.getKey(t, projectID, 0)
	require.NotNil(t, withUsage.Usage)
	assert.Equal(t, uint64(startSlot), withUsage.Usage.WindowStart)
	assert.Equal(t, uint32(0), withUsage.Usage.RequestCount)

	// Tighten the key in place.
	var scoped keyDoc
	status = admin.doJSON(t, http.MethodPut, keyPath(projectID, 0, "scopes"), updateScopesRequest{
		Scopes: []string{"payments:read"},
	}, &scoped)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"payments:read"}, scoped.Scopes)

	var limited keyDoc
	status = admin.doJSON(t, http.MethodPut, keyPath(projectID, 0, "rate-limit"), updateRateLimitRequest{
		RateLimit: 5,
	}, &limited)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint32(5), limited.RateLimit)

	var rotated keyDoc
	status = admin.doJSON(t, http.MethodPost, keyPath(projectID, 0, "rotate"), rotateKeyRequest{
		NewKeyHash: core.HashSecret([]byte("fresh-secret")).String(),
	}, &rotated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(0), rotated.TotalVerifications, "rotation resets the counters")

	// Suspend, reactivate, then retire the key for good.
	var suspended keyDoc
	status = admin.doJSON(t, http.MethodPost, keyPath(projectID, 0, "suspend"), nil, &suspended)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "suspended", suspended.Status)

	var reactivated keyDoc
	status = admin.doJSON(t, http.MethodPost, keyPath(projectID, 0, "reactivate"), nil, &reactivated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", reactivated.Status)

	var revoked keyDoc
	status = admin.doJSON(t, http.MethodPost, keyPath(projectID, 0, "revoke"), nil, &revoked)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "revoked", revoked.Status)

	status, raw := admin.do(t, http.MethodPost, keyPath(projectID, 0, "revoke"), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state", errorCode(t, raw))

	status = admin.doJSON(t, http.MethodGet, "/v1/projects/"+projectID.String(), nil, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint16(2), updated.TotalKeys, "revocation never frees the index")
	assert.Equal(t, uint16(1), updated.ActiveKeys)

	// Reclaim the revoked key's usage window.
	status, _ = admin.do(t, http.MethodDelete, keyPath(projectID, 0, "usage"), nil)
	require.Equal(t, http.StatusNoContent, status)

	withUsage = admin.getKey(t, projectID, 0)
	assert.Nil(t, withUsage.Usage, "closed window is gone")

	status, raw = admin.do(t, http.MethodDelete, keyPath(projectID, 0, "usage"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, raw))

	// The bus delivers in publish order, so once the revocation event is
	// visible everything before it is too.
	d.Events.WaitFor(t, core.NotifyAPIKeyRevoked, 3*time.Second)
	assert.Equal(t, 1, d.Events.CountOf(core.NotifyProjectCreated))
	assert.Equal(t, 2, d.Events.CountOf(core.NotifyAPIKeyIssued))
	assert.Equal(t, 1, d.Events.CountOf(core.NotifyAPIKeyRotated))
	assert.Equal(t, 1, d.Events.CountOf(core.NotifyAPIKeyScopesUpdated))
}

func TestFunctional_Lifecycle_SequentialIndexes(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	d := suite.StartDaemon()
	admin := d.Client(adminToken)
	projectID := fillProjectID(0x22)
	admin.createProject(t, projectID, 10)

	t.Run("index must equal the key count", func(t *testing.T) {
		status, raw := admin.do(t, http.MethodPost, "/v1/projects/"+projectID.String()+"/keys", issueKeyRequest{
			KeyIndex: 5,
			KeyHash:  core.HashSecret([]byte("secret")).String(),
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "sequence", errorCode(t, raw))
	})

	t.Run("an index is never reused", func(t *testing.T) {
		admin.issueKey(t, projectID, "first-secret", issueKeyRequest{KeyIndex: 0})

		status, raw := admin.do(t, http.MethodPost, "/v1/projects/"+projectID.String()+"/keys", issueKeyRequest{
			KeyIndex: 0,
			KeyHash:  core.HashSecret([]byte("second-secret")).String(),
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "sequence", errorCode(t, raw))
	})

	t.Run("missing project", func(t *testing.T) {
		ghost := fillProjectID(0x7F)
		status, raw := admin.do(t, http.MethodPost, "/v1/projects/"+ghost.String()+"/keys", issueKeyRequest{
			KeyIndex: 0,
			KeyHash:  core.HashSecret([]byte("secret")).String(),
		})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", errorCode(t, raw))
	})
}

// ============================================================================
// Authority and Ownership Tests
// ============================================================================

func TestFunctional_Lifecycle_AuthorityTransfer(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	d := suite.StartDaemon()
	admin := d.Client(adminToken)
	other := d.Client(otherToken)
	projectID := fillProjectID(0x23)
	admin.createProject(t, projectID, 10)

	var transferred projectDoc
	status := admin.doJSON(t, http.MethodPost, "/v1/projects/"+projectID.String()+"/transfer", transferRequest{
		NewAuthority: otherPrincipal.String(),
	}, &transferred)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, otherPrincipal.String(), transferred.Authority)

	ev := d.Events.WaitFor(t, core.NotifyProjectAuthorityTransferred, 3*time.Second)
	assert.Equal(t, adminPrincipal.String(), ev.Payload.OldAuthority)
	assert.Equal(t, otherPrincipal.String(), ev.Payload.NewAuthority)

	// The project stays at the original owner's address, but only the
	// new authority may change it.
	t.Run("old authority lost control", func(t *testing.T) {
		status, raw := admin.do(t, http.MethodPost, "/v1/projects/"+projectID.String()+"/keys", issueKeyRequest{
			KeyIndex: 0,
			KeyHash:  core.HashSecret([]byte("secret")).String(),
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errorCode(t, raw))
	})

	t.Run("new authority operates via the owner coordinate", func(t *testing.T) {
		ownedPath := "/v1/projects/" + projectID.String() + "/keys?owner=" + adminPrincipal.String()
		var key keyDoc
		status := other.doJSON(t, http.MethodPost, ownedPath, issueKeyRequest{
			KeyIndex: 0,
			KeyHash:  core.HashSecret([]byte("secret")).String(),
		}, &key)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, otherPrincipal.String(), key.IssuedBy)
	})
}

func TestFunctional_Lifecycle_OwnershipIsolation(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	d := suite.StartDaemon()
	admin := d.Client(adminToken)
	other := d.Client(otherToken)
	projectID := fillProjectID(0x24)
	admin.createProject(t, projectID, 10)

	t.Run("same id under another owner is a different project", func(t *testing.T) {
		status, raw := other.do(t, http.MethodGet, "/v1/projects/"+projectID.String(), nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", errorCode(t, raw))
	})

	t.Run("reads are open to any authenticated principal", func(t *testing.T) {
		path := "/v1/projects/" + projectID.String() + "?owner=" + adminPrincipal.String()
		var doc projectDoc
		status := other.doJSON(t, http.MethodGet, path, nil, &doc)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, adminPrincipal.String(), doc.Authority)
	})

	t.Run("writes require the authority", func(t *testing.T) {
		path := "/v1/projects/" + projectID.String() + "/keys?owner=" + adminPrincipal.String()
		status, raw := other.do(t, http.MethodPost, path, issueKeyRequest{
			KeyIndex: 0,
			KeyHash:  core.HashSecret([]byte("secret")).String(),
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errorCode(t, raw))
	})

	t.Run("owners collide only with themselves", func(t *testing.T) {
		// The other principal can own a project under the same id.
		other.createProject(t, projectID, 10)

		var doc projectDoc
		status := other.doJSON(t, http.MethodGet, "/v1/projects/"+projectID.String(), nil, &doc)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, otherPrincipal.String(), doc.Authority)
	})
}

func TestFunctional_Lifecycle_DuplicateProject(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	d := suite.StartDaemon()
	admin := d.Client(adminToken)
	projectID := fillProjectID(0x25)
	admin.createProject(t, projectID, 10)

	status, raw := admin.do(t, http.MethodPost, "/v1/projects", createProjectRequest{
		ProjectID:        projectID.String(),
		DefaultRateLimit: 10,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_exists", errorCode(t, raw))
}
