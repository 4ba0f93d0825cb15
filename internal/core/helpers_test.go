package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
)

const testSecret = "corp-primary-secret"

func testPrincipal(tag byte) Principal {
	var p Principal
	for i := range p {
		p[i] = tag
	}
	return p
}

func testProjectID(tag byte) ProjectID {
	var id ProjectID
	for i := range id {
		id[i] = tag
	}
	return id
}

func testRef(tag byte) Ref {
	var r Ref
	for i := range r {
		r[i] = tag
	}
	return r
}

func slotPtr(s clock.Slot) *clock.Slot {
	return &s
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

func strPtr(s string) *string {
	return &s
}

func newTestProject(t *testing.T) *Project {
	t.Helper()
	project, _, err := NewRegistry().CreateProject(CreateProjectParams{
		Addr:             testRef(0x01),
		Authority:        testPrincipal(0xAA),
		ProjectID:        testProjectID(0x10),
		Name:             "payments",
		Description:      "keys for the payments backend",
		DefaultRateLimit: 5,
		Now:              clock.Slot(100),
	})
	require.NoError(t, err)
	return project
}

// issueTestKey mints the project's next key with a known secret. Opts
// mutate the params before the call.
func issueTestKey(t *testing.T, project *Project, now clock.Slot, opts ...func(*IssueKeyParams)) (*APIKey, *UsageWindow) {
	t.Helper()
	params := IssueKeyParams{
		KeyAddr:   testRef(0x20 + byte(project.TotalKeys)),
		UsageAddr: testRef(0x60 + byte(project.TotalKeys)),
		Caller:    project.Authority,
		KeyIndex:  project.TotalKeys,
		Name:      "checkout",
		KeyHash:   HashSecret([]byte(testSecret)),
		Scopes:    []string{"read", "write"},
		Now:       now,
	}
	for _, opt := range opts {
		opt(&params)
	}
	key, usage, _, err := NewLifecycle().IssueKey(project, params)
	require.NoError(t, err)
	return key, usage
}

func verifySecret(project *Project, key *APIKey, usage *UsageWindow, secret string, scope *string, now clock.Slot) (VerifyResult, error) {
	return NewVerifier().Verify(project, key, usage, VerifyParams{
		Presented:     HashSecret([]byte(secret)),
		RequiredScope: scope,
		Now:           now,
	})
}
