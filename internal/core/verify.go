package core

import "github.com/vyrodovalexey/avkeyd/internal/clock"

// Verifier holds the hot-path verification operation.
type Verifier struct{}

// NewVerifier creates a verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyParams carries the inputs for Verify. RequiredScope nil skips
// the scope check entirely.
type VerifyParams struct {
	Presented     Digest
	RequiredScope *string
	Now           clock.Slot
}

// VerifyResult reports what Verify changed. The mutation flags tell the
// host which records to persist; on the digest mismatch path the key
// (and sometimes the project) must be persisted even though Verify
// returns an error, otherwise failed verification counts would be lost.
type VerifyResult struct {
	Notifications  []Notification
	KeyMutated     bool
	UsageMutated   bool
	ProjectMutated bool
	RequestCount   uint32
}

// Verify checks a presented digest against the key and charges the
// usage window. The checks run in a fixed order: ownership, status,
// expiry, digest, scope, rate window. A digest mismatch increments the
// failure count and revokes the key once the count reaches
// AutoRevokeThreshold. Scope and rate failures never mutate state, and
// the failure count resets only on full success.
func (v *Verifier) Verify(project *Project, key *APIKey, usage *UsageWindow, p VerifyParams) (VerifyResult, error) {
	var res VerifyResult

	if err := requireKeyOwnership(project, key); err != nil {
		return res, err
	}
	if err := requireUsageOwnership(key, usage); err != nil {
		return res, err
	}
	if key.Status != StatusActive {
		return res, WrapError(KindState, ErrKeyNotActive)
	}
	if key.Expired(p.Now) {
		return res, WrapError(KindTemporal, ErrKeyExpired)
	}

	if !p.Presented.Equal(key.KeyHash) {
		key.FailedVerifications = satAdd8(key.FailedVerifications, 1)
		res.KeyMutated = true
		if key.FailedVerifications >= AutoRevokeThreshold {
			key.Status = StatusRevoked
			project.ActiveKeys = satSub16(project.ActiveKeys, 1)
			res.ProjectMutated = true
			res.Notifications = append(res.Notifications, Notification{
				Type:    NotifyAPIKeyAutoRevoked,
				Project: key.Project,
				APIKey:  key.Addr,
				Reason:  AutoRevokeReason,
			})
		}
		// The caller learns only that the key is invalid, never
		// whether it was close.
		return res, WrapError(KindAuthFailure, ErrInvalidKey)
	}

	if p.RequiredScope != nil && !key.HasScope(*p.RequiredScope) {
		return res, WrapError(KindScopeDenied, ErrInsufficientScope)
	}

	// Sliding window: a window older than RateWindowSlots restarts at
	// the current slot. With a positive rate limit the restarted window
	// always admits the request, so a rate refusal implies the window
	// was live and nothing below mutated.
	cutoff := clock.Slot(0)
	if p.Now > clock.Slot(RateWindowSlots) {
		cutoff = p.Now - clock.Slot(RateWindowSlots)
	}
	if usage.WindowStart < cutoff {
		usage.WindowStart = p.Now
		usage.RequestCount = 0
		res.UsageMutated = true
	}

	if usage.RequestCount >= key.RateLimit {
		return res, WrapError(KindRateLimited, ErrRateLimitExceeded)
	}

	usage.RequestCount = satAdd32(usage.RequestCount, 1)
	usage.LastUsedAt = p.Now
	now := p.Now
	key.LastVerifiedAt = &now
	key.TotalVerifications = satAdd64(key.TotalVerifications, 1)
	key.FailedVerifications = 0
	res.KeyMutated = true
	res.UsageMutated = true
	res.RequestCount = usage.RequestCount

	res.Notifications = append(res.Notifications, Notification{
		Type:         NotifyAPIKeyVerified,
		Project:      key.Project,
		APIKey:       key.Addr,
		Slot:         p.Now,
		RequestCount: usage.RequestCount,
	})
	return res, nil
}
