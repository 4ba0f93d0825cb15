package service

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/record"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// CreateProjectParams carries the inputs for CreateProject. The caller
// becomes both the owner the project address is derived from and the
// initial authority.
type CreateProjectParams struct {
	Caller           core.Principal
	ProjectID        core.ProjectID
	Name             string
	Description      string
	DefaultRateLimit uint32
}

// CreateProject creates a project owned by the caller.
func (s *Service) CreateProject(ctx context.Context, p CreateProjectParams) (_ *core.Project, err error) {
	ctx, finish := s.instrument(ctx, opCreateProject)
	defer func() { finish(err) }()

	addr := record.ProjectAddress(p.Caller, p.ProjectID)
	unlock := s.lockProject(addr)
	defer unlock()

	now := s.clock.Now()
	project, notifications, err := s.registry.CreateProject(core.CreateProjectParams{
		Addr:             addr.Ref(),
		Authority:        p.Caller,
		ProjectID:        p.ProjectID,
		Name:             p.Name,
		Description:      p.Description,
		DefaultRateLimit: p.DefaultRateLimit,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	data, err := record.EncodeProject(project)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx, store.Create(addr, data)); err != nil {
		return nil, fmt.Errorf("commit project: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("project created",
		observability.String("project", addr.String()),
		observability.String("name", p.Name),
		observability.Uint32("default_rate_limit", p.DefaultRateLimit),
	)
	return project, nil
}

// GetProject loads a project for auditing. Reads skip the project lock
// and return the latest committed record.
func (s *Service) GetProject(ctx context.Context, owner core.Principal, id core.ProjectID) (_ *core.Project, err error) {
	ctx, finish := s.instrument(ctx, opGetProject)
	defer func() { finish(err) }()

	return s.loadProject(ctx, record.ProjectAddress(owner, id))
}

// TransferParams carries the inputs for TransferAuthority. Owner is the
// principal the project address was derived from at creation.
type TransferParams struct {
	Caller       core.Principal
	Owner        core.Principal
	ProjectID    core.ProjectID
	NewAuthority core.Principal
}

// TransferAuthority hands control of a project to a new principal. The
// project keeps its address, so keys issued before the transfer stay
// reachable under the original owner coordinates.
func (s *Service) TransferAuthority(ctx context.Context, p TransferParams) (_ *core.Project, err error) {
	ctx, finish := s.instrument(ctx, opTransferAuthority)
	defer func() { finish(err) }()

	addr := record.ProjectAddress(p.Owner, p.ProjectID)
	unlock := s.lockProject(addr)
	defer unlock()

	project, err := s.loadProject(ctx, addr)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	notifications, err := s.registry.TransferAuthority(project, p.Caller, p.NewAuthority)
	if err != nil {
		return nil, err
	}

	data, err := record.EncodeProject(project)
	if err != nil {
		return nil, err
	}
	if err = s.store.Apply(ctx, store.Update(addr, data)); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	s.publish(notifications, now)
	s.logger.Info("project authority transferred",
		observability.String("project", addr.String()),
		observability.String("new_authority", p.NewAuthority.String()),
	)
	return project, nil
}
