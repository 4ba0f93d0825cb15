package core

import "github.com/vyrodovalexey/avkeyd/internal/clock"

// NotificationType names a domain event.
type NotificationType string

// Notification types emitted by domain operations.
const (
	NotifyProjectCreated              NotificationType = "ProjectCreated"
	NotifyProjectAuthorityTransferred NotificationType = "ProjectAuthorityTransferred"
	NotifyAPIKeyIssued                NotificationType = "ApiKeyIssued"
	NotifyAPIKeyVerified              NotificationType = "ApiKeyVerified"
	NotifyAPIKeyRotated               NotificationType = "ApiKeyRotated"
	NotifyAPIKeyScopesUpdated         NotificationType = "ApiKeyScopesUpdated"
	NotifyAPIKeyRevoked               NotificationType = "ApiKeyRevoked"
	NotifyAPIKeyAutoRevoked           NotificationType = "ApiKeyAutoRevoked"
)

// Notification describes one domain event produced by an operation.
// Operations return notifications instead of publishing them, so a host
// can commit state first and emit only what actually happened. Fields
// beyond Type, Project and APIKey are populated per type:
//
//	ProjectCreated               Authority, ProjectID, Name
//	ProjectAuthorityTransferred  OldAuthority, NewAuthority
//	ApiKeyIssued                 KeyIndex, Name, Scopes, ExpiresAt
//	ApiKeyVerified               Slot, RequestCount
//	ApiKeyRotated                OldHash, Slot
//	ApiKeyScopesUpdated          OldScopes, NewScopes
//	ApiKeyRevoked                Slot
//	ApiKeyAutoRevoked            Reason
type Notification struct {
	Type NotificationType

	Project Ref
	APIKey  Ref

	Authority    Principal
	ProjectID    ProjectID
	Name         string
	OldAuthority Principal
	NewAuthority Principal
	KeyIndex     uint16
	Scopes       []string
	ExpiresAt    *clock.Slot
	Slot         clock.Slot
	RequestCount uint32
	OldHash      Digest
	OldScopes    []string
	NewScopes    []string
	Reason       string
}
