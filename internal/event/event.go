package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// Event is the wire form of a domain notification.
type Event struct {
	// ID uniquely identifies the delivery.
	ID string `json:"id"`

	// Type is the notification type name.
	Type core.NotificationType `json:"type"`

	// Slot is the slot at which the operation committed.
	Slot clock.Slot `json:"slot"`

	// EmittedAt is when the event was built.
	EmittedAt time.Time `json:"emitted_at"`

	// Project is the hex reference of the project record involved.
	Project string `json:"project,omitempty"`

	// APIKey is the hex reference of the key record involved, when the
	// operation touched one.
	APIKey string `json:"api_key,omitempty"`

	// Payload carries the type-specific fields.
	Payload Payload `json:"payload"`
}

// Payload holds the per-type fields of an event. Only the fields the
// event type defines are set; the rest are omitted from the JSON form.
type Payload struct {
	Authority    string      `json:"authority,omitempty"`
	ProjectID    string      `json:"project_id,omitempty"`
	Name         string      `json:"name,omitempty"`
	OldAuthority string      `json:"old_authority,omitempty"`
	NewAuthority string      `json:"new_authority,omitempty"`
	KeyIndex     *uint16     `json:"key_index,omitempty"`
	Scopes       []string    `json:"scopes,omitempty"`
	ExpiresAt    *clock.Slot `json:"expires_at,omitempty"`
	RequestCount uint32      `json:"request_count,omitempty"`
	OldHash      string      `json:"old_hash,omitempty"`
	OldScopes    []string    `json:"old_scopes,omitempty"`
	NewScopes    []string    `json:"new_scopes,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// New builds the event for a notification committed at slot.
func New(n core.Notification, slot clock.Slot) Event {
	e := Event{
		ID:        uuid.New().String(),
		Type:      n.Type,
		Slot:      slot,
		EmittedAt: time.Now().UTC(),
		Payload:   payloadFor(n),
	}
	if n.Project != (core.Ref{}) {
		e.Project = n.Project.String()
	}
	if n.APIKey != (core.Ref{}) {
		e.APIKey = n.APIKey.String()
	}
	return e
}

// payloadFor picks the fields the notification type defines. Revoked
// events carry nothing beyond the envelope.
func payloadFor(n core.Notification) Payload {
	var p Payload

	switch n.Type {
	case core.NotifyProjectCreated:
		p.Authority = n.Authority.String()
		p.ProjectID = n.ProjectID.String()
		p.Name = n.Name
	case core.NotifyProjectAuthorityTransferred:
		p.OldAuthority = n.OldAuthority.String()
		p.NewAuthority = n.NewAuthority.String()
	case core.NotifyAPIKeyIssued:
		index := n.KeyIndex
		p.KeyIndex = &index
		p.Name = n.Name
		p.Scopes = n.Scopes
		p.ExpiresAt = n.ExpiresAt
	case core.NotifyAPIKeyVerified:
		p.RequestCount = n.RequestCount
	case core.NotifyAPIKeyRotated:
		p.OldHash = n.OldHash.String()
	case core.NotifyAPIKeyScopesUpdated:
		p.OldScopes = n.OldScopes
		p.NewScopes = n.NewScopes
	case core.NotifyAPIKeyAutoRevoked:
		p.Reason = n.Reason
	}

	return p
}
