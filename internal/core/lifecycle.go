package core

import "github.com/vyrodovalexey/avkeyd/internal/clock"

// Lifecycle holds the key management operations. Every operation checks
// the caller against the project authority before touching state.
type Lifecycle struct{}

// NewLifecycle creates a lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// IssueKeyParams carries the inputs for IssueKey. KeyAddr and UsageAddr
// are the refs derived by the host for the new records.
type IssueKeyParams struct {
	KeyAddr           Ref
	UsageAddr         Ref
	Caller            Principal
	KeyIndex          uint16
	Name              string
	KeyHash           Digest
	Scopes            []string
	ExpiresAt         *clock.Slot
	RateLimitOverride *uint32
	Now               clock.Slot
}

// IssueKey mints a new key under the project together with its usage
// window. KeyIndex must equal the project's current key count, which
// keeps indices dense and makes concurrent issuance race-safe: only one
// of two racing calls can hold the matching index.
func (l *Lifecycle) IssueKey(project *Project, p IssueKeyParams) (*APIKey, *UsageWindow, []Notification, error) {
	if err := requireAuthority(project, p.Caller); err != nil {
		return nil, nil, nil, err
	}
	if err := validateKeyName(p.Name); err != nil {
		return nil, nil, nil, err
	}
	if err := validateScopes(p.Scopes); err != nil {
		return nil, nil, nil, err
	}
	if p.RateLimitOverride != nil {
		if err := validateRateLimit(*p.RateLimitOverride); err != nil {
			return nil, nil, nil, err
		}
	}
	if p.ExpiresAt != nil && *p.ExpiresAt <= p.Now {
		return nil, nil, nil, WrapError(KindTemporal, ErrExpiryInPast)
	}
	if project.TotalKeys >= MaxKeysPerProject {
		return nil, nil, nil, WrapError(KindCapacity, ErrMaxKeysReached)
	}
	if p.KeyIndex != project.TotalKeys {
		return nil, nil, nil, WrapError(KindSequence, ErrInvalidKeyIndex)
	}

	rateLimit := project.DefaultRateLimit
	if p.RateLimitOverride != nil {
		rateLimit = *p.RateLimitOverride
	}

	key := &APIKey{
		Addr:                p.KeyAddr,
		Project:             project.Addr,
		IssuedBy:            project.Authority,
		KeyIndex:            p.KeyIndex,
		Name:                p.Name,
		KeyHash:             p.KeyHash,
		Scopes:              append([]string(nil), p.Scopes...),
		Status:              StatusActive,
		ExpiresAt:           cloneSlot(p.ExpiresAt),
		RateLimit:           rateLimit,
		CreatedAt:           p.Now,
		LastVerifiedAt:      nil,
		TotalVerifications:  0,
		FailedVerifications: 0,
	}

	// LastUsedAt stays zero until the first verification.
	usage := &UsageWindow{
		Addr:         p.UsageAddr,
		APIKey:       key.Addr,
		WindowStart:  p.Now,
		RequestCount: 0,
		LastUsedAt:   0,
	}

	project.TotalKeys++
	project.ActiveKeys++

	notifications := []Notification{{
		Type:      NotifyAPIKeyIssued,
		Project:   project.Addr,
		APIKey:    key.Addr,
		KeyIndex:  key.KeyIndex,
		Name:      key.Name,
		Scopes:    key.Scopes,
		ExpiresAt: cloneSlot(key.ExpiresAt),
	}}
	return key, usage, notifications, nil
}

// RotateKeyParams carries the inputs for RotateKey.
type RotateKeyParams struct {
	Caller       Principal
	NewKeyHash   Digest
	NewExpiresAt *clock.Slot
	Now          clock.Slot
}

// RotateKey swaps the key digest in place. The ref, index and scopes
// survive rotation while both verification counters reset, so a rotated
// key starts a clean life under the same identity. The expiry is
// replaced with NewExpiresAt as given; nil clears a previous expiry.
func (l *Lifecycle) RotateKey(project *Project, key *APIKey, p RotateKeyParams) ([]Notification, error) {
	if err := requireAuthority(project, p.Caller); err != nil {
		return nil, err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return nil, err
	}
	if p.NewExpiresAt != nil && *p.NewExpiresAt <= p.Now {
		return nil, WrapError(KindTemporal, ErrExpiryInPast)
	}
	if key.Status != StatusActive {
		return nil, WrapError(KindState, ErrKeyNotActive)
	}

	oldHash := key.KeyHash
	key.KeyHash = p.NewKeyHash
	key.ExpiresAt = cloneSlot(p.NewExpiresAt)
	key.FailedVerifications = 0
	key.TotalVerifications = 0

	return []Notification{{
		Type:    NotifyAPIKeyRotated,
		Project: key.Project,
		APIKey:  key.Addr,
		OldHash: oldHash,
		Slot:    p.Now,
	}}, nil
}

// UpdateScopes replaces the scope list. Status is not checked, so
// scopes of suspended or revoked keys can still be corrected.
func (l *Lifecycle) UpdateScopes(project *Project, key *APIKey, caller Principal, scopes []string) ([]Notification, error) {
	if err := requireAuthority(project, caller); err != nil {
		return nil, err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return nil, err
	}
	if err := validateScopes(scopes); err != nil {
		return nil, err
	}

	old := key.Scopes
	key.Scopes = append([]string(nil), scopes...)

	return []Notification{{
		Type:      NotifyAPIKeyScopesUpdated,
		Project:   key.Project,
		APIKey:    key.Addr,
		OldScopes: old,
		NewScopes: key.Scopes,
	}}, nil
}

// UpdateRateLimit replaces the per-key rate limit. No notification is
// emitted for this operation.
func (l *Lifecycle) UpdateRateLimit(project *Project, key *APIKey, caller Principal, limit uint32) error {
	if err := requireAuthority(project, caller); err != nil {
		return err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return err
	}
	if err := validateRateLimit(limit); err != nil {
		return err
	}

	key.RateLimit = limit
	return nil
}

// RevokeKey retires an active key permanently and releases its slot in
// the project's active count.
func (l *Lifecycle) RevokeKey(project *Project, key *APIKey, caller Principal, now clock.Slot) ([]Notification, error) {
	if err := requireAuthority(project, caller); err != nil {
		return nil, err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return nil, err
	}
	if key.Status != StatusActive {
		return nil, WrapError(KindState, ErrKeyNotActive)
	}

	key.Status = StatusRevoked
	project.ActiveKeys = satSub16(project.ActiveKeys, 1)

	return []Notification{{
		Type:    NotifyAPIKeyRevoked,
		Project: project.Addr,
		APIKey:  key.Addr,
		Slot:    now,
	}}, nil
}

// SuspendKey pauses an active key. No notification is emitted.
func (l *Lifecycle) SuspendKey(project *Project, key *APIKey, caller Principal) error {
	if err := requireAuthority(project, caller); err != nil {
		return err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return err
	}
	if key.Status != StatusActive {
		return WrapError(KindState, ErrKeyNotActive)
	}

	key.Status = StatusSuspended
	project.ActiveKeys = satSub16(project.ActiveKeys, 1)
	return nil
}

// ReactivateKey resumes a suspended key. No notification is emitted.
func (l *Lifecycle) ReactivateKey(project *Project, key *APIKey, caller Principal) error {
	if err := requireAuthority(project, caller); err != nil {
		return err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return err
	}
	if key.Status != StatusSuspended {
		return WrapError(KindState, ErrKeyNotSuspended)
	}

	key.Status = StatusActive
	project.ActiveKeys = satAdd16(project.ActiveKeys, 1)
	return nil
}

// CloseUsage authorizes removal of a key's usage window. The record
// itself is deleted by the host after this returns nil.
func (l *Lifecycle) CloseUsage(project *Project, key *APIKey, usage *UsageWindow, caller Principal) error {
	if err := requireAuthority(project, caller); err != nil {
		return err
	}
	if err := requireKeyOwnership(project, key); err != nil {
		return err
	}
	return requireUsageOwnership(key, usage)
}

func cloneSlot(s *clock.Slot) *clock.Slot {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
