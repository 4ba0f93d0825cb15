package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/record"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// IssueKeyParams carries the inputs for IssueKey. KeyIndex must equal
// the project's current key count; GetProject exposes that count so
// callers can derive the next index and its address up front.
type IssueKeyParams struct {
	Caller            core.Principal
	Owner             core.Principal
	ProjectID         core.ProjectID
	KeyIndex          uint16
	Name              string
	KeyHash           core.Digest
	Scopes            []string
	ExpiresAt         *clock.Slot
	RateLimitOverride *uint32
}

// IssueKey mints a new key under the project together with a fresh
// usage window. The project counters, the key and the window commit in
// one batch.
func (s *Service) IssueKey(ctx context.Context, p IssueKeyParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opIssueKey)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, err := s.loadProject(ctx, projAddr)
	if err != nil {
		return nil, err
	}

	keyAddr := record.KeyAddress(projAddr, p.KeyIndex)
	usageAddr := record.UsageAddress(keyAddr)

	now := s.clock.Now()
	key, usage, notifications, err := s.lifecycle.IssueKey(project, core.IssueKeyParams{
		KeyAddr:           keyAddr.Ref(),
		UsageAddr:         usageAddr.Ref(),
		Caller:            p.Caller,
		KeyIndex:          p.KeyIndex,
		Name:              p.Name,
		KeyHash:           p.KeyHash,
		Scopes:            p.Scopes,
		ExpiresAt:         p.ExpiresAt,
		RateLimitOverride: p.RateLimitOverride,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}

	projData, err := record.EncodeProject(project)
	if err != nil {
		return nil, err
	}
	keyData, err := record.EncodeAPIKey(key)
	if err != nil {
		return nil, err
	}
	usageData, err := record.EncodeUsage(usage)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx,
		store.Update(projAddr, projData),
		store.Create(keyAddr, keyData),
		store.Create(usageAddr, usageData),
	); err != nil {
		return nil, fmt.Errorf("commit key issue: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("api key issued",
		observability.String("project", projAddr.String()),
		observability.String("api_key", keyAddr.String()),
		observability.Uint16("key_index", p.KeyIndex),
		observability.String("name", p.Name),
	)
	return key, nil
}

// GetKey loads a key and its usage window for auditing. A closed usage
// window comes back nil.
func (s *Service) GetKey(ctx context.Context, owner core.Principal, id core.ProjectID, index uint16) (_ *core.APIKey, _ *core.UsageWindow, err error) {
	ctx, finish := s.instrument(ctx, opGetKey)
	defer func() { finish(err) }()

	keyAddr := record.KeyAddress(record.ProjectAddress(owner, id), index)
	key, err := s.loadKey(ctx, keyAddr)
	if err != nil {
		return nil, nil, err
	}

	usage, err := s.loadUsage(ctx, record.UsageAddress(keyAddr))
	if errors.Is(err, store.ErrNotFound) {
		return key, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return key, usage, nil
}

// RotateKeyParams carries the inputs for RotateKey. NewExpiresAt
// replaces the key expiry outright; nil clears a previous expiry.
type RotateKeyParams struct {
	Caller       core.Principal
	Owner        core.Principal
	ProjectID    core.ProjectID
	KeyIndex     uint16
	NewKeyHash   core.Digest
	NewExpiresAt *clock.Slot
}

// RotateKey swaps the key digest in place and resets both verification
// counters.
func (s *Service) RotateKey(ctx context.Context, p RotateKeyParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opRotateKey)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	notifications, err := s.lifecycle.RotateKey(project, key, core.RotateKeyParams{
		Caller:       p.Caller,
		NewKeyHash:   p.NewKeyHash,
		NewExpiresAt: p.NewExpiresAt,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	keyData, err := record.EncodeAPIKey(key)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx, store.Update(keyAddr, keyData)); err != nil {
		return nil, fmt.Errorf("commit key rotation: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("api key rotated",
		observability.String("project", projAddr.String()),
		observability.String("api_key", keyAddr.String()),
	)
	return key, nil
}

// UpdateScopesParams carries the inputs for UpdateScopes.
type UpdateScopesParams struct {
	Caller    core.Principal
	Owner     core.Principal
	ProjectID core.ProjectID
	KeyIndex  uint16
	Scopes    []string
}

// UpdateScopes replaces the scope list of a key regardless of its
// status.
func (s *Service) UpdateScopes(ctx context.Context, p UpdateScopesParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opUpdateScopes)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	notifications, err := s.lifecycle.UpdateScopes(project, key, p.Caller, p.Scopes)
	if err != nil {
		return nil, err
	}

	keyData, err := record.EncodeAPIKey(key)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx, store.Update(keyAddr, keyData)); err != nil {
		return nil, fmt.Errorf("commit scope update: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("api key scopes updated",
		observability.String("api_key", keyAddr.String()),
		observability.Strings("scopes", p.Scopes),
	)
	return key, nil
}

// UpdateRateLimitParams carries the inputs for UpdateRateLimit.
type UpdateRateLimitParams struct {
	Caller    core.Principal
	Owner     core.Principal
	ProjectID core.ProjectID
	KeyIndex  uint16
	RateLimit uint32
}

// UpdateRateLimit replaces the per-key rate limit. The live usage
// window keeps its count, so a lowered limit takes effect immediately.
func (s *Service) UpdateRateLimit(ctx context.Context, p UpdateRateLimitParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opUpdateRateLimit)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	if err = s.lifecycle.UpdateRateLimit(project, key, p.Caller, p.RateLimit); err != nil {
		return nil, err
	}

	keyData, err := record.EncodeAPIKey(key)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx, store.Update(keyAddr, keyData)); err != nil {
		return nil, fmt.Errorf("commit rate limit update: %w", err)
	}

	s.logger.Info("api key rate limit updated",
		observability.String("api_key", keyAddr.String()),
		observability.Uint32("rate_limit", p.RateLimit),
	)
	return key, nil
}

// KeyActionParams identifies a key for the status transitions and for
// CloseUsage.
type KeyActionParams struct {
	Caller    core.Principal
	Owner     core.Principal
	ProjectID core.ProjectID
	KeyIndex  uint16
}

// RevokeKey retires an active key permanently.
func (s *Service) RevokeKey(ctx context.Context, p KeyActionParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opRevokeKey)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	notifications, err := s.lifecycle.RevokeKey(project, key, p.Caller, now)
	if err != nil {
		return nil, err
	}

	if err = s.commitProjectAndKey(ctx, projAddr, project, keyAddr, key); err != nil {
		return nil, fmt.Errorf("commit revocation: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("api key revoked",
		observability.String("project", projAddr.String()),
		observability.String("api_key", keyAddr.String()),
	)
	return key, nil
}

// SuspendKey pauses an active key.
func (s *Service) SuspendKey(ctx context.Context, p KeyActionParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opSuspendKey)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	if err = s.lifecycle.SuspendKey(project, key, p.Caller); err != nil {
		return nil, err
	}

	if err = s.commitProjectAndKey(ctx, projAddr, project, keyAddr, key); err != nil {
		return nil, fmt.Errorf("commit suspension: %w", err)
	}

	s.logger.Info("api key suspended",
		observability.String("api_key", keyAddr.String()),
	)
	return key, nil
}

// ReactivateKey resumes a suspended key.
func (s *Service) ReactivateKey(ctx context.Context, p KeyActionParams) (_ *core.APIKey, err error) {
	ctx, finish := s.instrument(ctx, opReactivateKey)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return nil, err
	}

	if err = s.lifecycle.ReactivateKey(project, key, p.Caller); err != nil {
		return nil, err
	}

	if err = s.commitProjectAndKey(ctx, projAddr, project, keyAddr, key); err != nil {
		return nil, fmt.Errorf("commit reactivation: %w", err)
	}

	s.logger.Info("api key reactivated",
		observability.String("api_key", keyAddr.String()),
	)
	return key, nil
}

// CloseUsage deletes a key's usage window. No other record changes,
// but verification needs the window, so the key stops verifying once
// it is gone. Intended for cleanup after revocation.
func (s *Service) CloseUsage(ctx context.Context, p KeyActionParams) (err error) {
	ctx, finish := s.instrument(ctx, opCloseUsage)
	defer func() { finish(err) }()

	projAddr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(projAddr)
	defer unlock()

	project, key, keyAddr, err := s.loadProjectAndKey(ctx, projAddr, p.KeyIndex)
	if err != nil {
		return err
	}

	usageAddr := record.UsageAddress(keyAddr)
	usage, err := s.loadUsage(ctx, usageAddr)
	if err != nil {
		return err
	}

	if err = s.lifecycle.CloseUsage(project, key, usage, p.Caller); err != nil {
		return err
	}

	if err = s.store.Apply(ctx, store.Delete(usageAddr)); err != nil {
		return fmt.Errorf("commit usage close: %w", err)
	}

	s.logger.Info("usage window closed",
		observability.String("api_key", keyAddr.String()),
	)
	return nil
}

// loadProjectAndKey loads the project and the key at the given index.
func (s *Service) loadProjectAndKey(ctx context.Context, projAddr record.Address, index uint16) (*core.Project, *core.APIKey, record.Address, error) {
	project, err := s.loadProject(ctx, projAddr)
	if err != nil {
		return nil, nil, record.Address{}, err
	}
	keyAddr := record.KeyAddress(projAddr, index)
	key, err := s.loadKey(ctx, keyAddr)
	if err != nil {
		return nil, nil, record.Address{}, err
	}
	return project, key, keyAddr, nil
}

// commitProjectAndKey writes both records in one batch, used by the
// transitions that move a key between status counts.
func (s *Service) commitProjectAndKey(ctx context.Context, projAddr record.Address, project *core.Project, keyAddr record.Address, key *core.APIKey) error {
	projData, err := record.EncodeProject(project)
	if err != nil {
		return err
	}
	keyData, err := record.EncodeAPIKey(key)
	if err != nil {
		return err
	}
	return s.store.Apply(ctx,
		store.Update(projAddr, projData),
		store.Update(keyAddr, keyData),
	)
}
