package server

import (
	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// projectView is the transport shape of a project record.
type projectView struct {
	Address          string     `json:"address"`
	Authority        string     `json:"authority"`
	ProjectID        string     `json:"project_id"`
	Name             string     `json:"name,omitempty"`
	Description      string     `json:"description,omitempty"`
	DefaultRateLimit uint32     `json:"default_rate_limit"`
	TotalKeys        uint16     `json:"total_keys"`
	ActiveKeys       uint16     `json:"active_keys"`
	CreatedAt        clock.Slot `json:"created_at"`
}

func newProjectView(p *core.Project) projectView {
	return projectView{
		Address:          p.Addr.String(),
		Authority:        p.Authority.String(),
		ProjectID:        p.ProjectID.String(),
		Name:             p.Name,
		Description:      p.Description,
		DefaultRateLimit: p.DefaultRateLimit,
		TotalKeys:        p.TotalKeys,
		ActiveKeys:       p.ActiveKeys,
		CreatedAt:        p.CreatedAt,
	}
}

// keyView is the transport shape of a key record. The stored digest is
// deliberately absent: it never leaves the service.
type keyView struct {
	Address             string      `json:"address"`
	Project             string      `json:"project"`
	IssuedBy            string      `json:"issued_by"`
	KeyIndex            uint16      `json:"key_index"`
	Name                string      `json:"name,omitempty"`
	Scopes              []string    `json:"scopes,omitempty"`
	Status              string      `json:"status"`
	ExpiresAt           *clock.Slot `json:"expires_at,omitempty"`
	RateLimit           uint32      `json:"rate_limit"`
	CreatedAt           clock.Slot  `json:"created_at"`
	LastVerifiedAt      *clock.Slot `json:"last_verified_at,omitempty"`
	TotalVerifications  uint64      `json:"total_verifications"`
	FailedVerifications uint8       `json:"failed_verifications"`
}

func newKeyView(k *core.APIKey) keyView {
	return keyView{
		Address:             k.Addr.String(),
		Project:             k.Project.String(),
		IssuedBy:            k.IssuedBy.String(),
		KeyIndex:            k.KeyIndex,
		Name:                k.Name,
		Scopes:              k.Scopes,
		Status:              k.Status.String(),
		ExpiresAt:           k.ExpiresAt,
		RateLimit:           k.RateLimit,
		CreatedAt:           k.CreatedAt,
		LastVerifiedAt:      k.LastVerifiedAt,
		TotalVerifications:  k.TotalVerifications,
		FailedVerifications: k.FailedVerifications,
	}
}

// usageView is the transport shape of a usage window record.
type usageView struct {
	WindowStart  clock.Slot `json:"window_start"`
	RequestCount uint32     `json:"request_count"`
	LastUsedAt   clock.Slot `json:"last_used_at"`
}

func newUsageView(u *core.UsageWindow) *usageView {
	if u == nil {
		return nil
	}
	return &usageView{
		WindowStart:  u.WindowStart,
		RequestCount: u.RequestCount,
		LastUsedAt:   u.LastUsedAt,
	}
}
