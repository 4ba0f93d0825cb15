package service

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/record"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// VerifyParams carries the inputs for Verify. Scope nil skips the
// scope check.
type VerifyParams struct {
	Owner     core.Principal
	ProjectID core.ProjectID
	KeyIndex  uint16
	Digest    core.Digest
	Scope     *string
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	KeyIndex     uint16
	Scopes       []string
	RateLimit    uint32
	RequestCount uint32
	Slot         clock.Slot
}

// Verify checks a presented digest against the stored key and charges
// the usage window. This is the one operation that commits on an error
// path: a digest mismatch persists the failure count, and at the
// threshold the auto-revocation, before the error returns. Every other
// refusal commits nothing.
func (s *Service) Verify(ctx context.Context, p VerifyParams) (_ *VerifyResult, err error) {
	ctx, finish := s.instrument(ctx, opVerify)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}
	usageAddr := record.UsageAddress(keyAddr)
	usage, err := s.loadUsage(ctx, usageAddr)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res, verifyErr := s.verifier.Verify(project, key, usage, core.VerifyParams{
		Presented:     p.Digest,
		RequiredScope: p.Scope,
		Now:           now,
	})

	ops := make([]store.Op, 0, 3)
	if res.ProjectMutated {
		projData, encErr := record.EncodeProject(project)
		if encErr != nil {
			return nil, encErr
		}
		ops = append(ops, store.Update(projAddr, projData))
	}
	if res.KeyMutated {
		keyData, encErr := record.EncodeAPIKey(key)
		if encErr != nil {
			return nil, encErr
		}
		ops = append(ops, store.Update(keyAddr, keyData))
	}
	if res.UsageMutated {
		usageData, encErr := record.EncodeUsage(usage)
		if encErr != nil {
			return nil, encErr
		}
		ops = append(ops, store.Update(usageAddr, usageData))
	}

	if len(ops) > 0 {
		if err = s.store.Apply(ctx, ops...); err != nil {
			return nil, fmt.Errorf("commit verification: %w", err)
		}
		s.publish(res.Notifications, now)
	}

	if verifyErr != nil {
		s.observeVerifyFailure(keyAddr, key, verifyErr)
		return nil, verifyErr
	}

	s.logger.Debug("api key verified",
		observability.String("api_key", keyAddr.String()),
		observability.Uint32("request_count", res.RequestCount),
	)
	return &VerifyResult{
		KeyIndex:     key.KeyIndex,
		Scopes:       key.Scopes,
		RateLimit:    key.RateLimit,
		RequestCount: res.RequestCount,
		Slot:         now,
	}, nil
}

// observeVerifyFailure logs a refused verification. Auto-revocations
// surface at warn level with their own counter; everything else stays
// at debug to keep the hot path quiet.
func (s *Service) observeVerifyFailure(keyAddr record.Address, key *core.APIKey, err error) {
	if key.Status == core.StatusRevoked && core.KindOf(err) == core.KindAuthFailure {
		s.metrics.autoRevoked()
		s.logger.Warn("api key auto-revoked",
			observability.String("api_key", keyAddr.String()),
			observability.String("reason", core.AutoRevokeReason),
		)
		return
	}
	s.logger.Debug("verification refused",
		observability.String("api_key", keyAddr.String()),
		observability.String("kind", core.KindOf(err).String()),
	)
}
