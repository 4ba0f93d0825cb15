package core

import "github.com/vyrodovalexey/avkeyd/internal/clock"

// Registry holds the project level operations.
type Registry struct{}

// NewRegistry creates a registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// CreateProjectParams carries the inputs for CreateProject. Addr is the
// ref derived by the host from the creating owner and the project ID.
type CreateProjectParams struct {
	Addr             Ref
	Authority        Principal
	ProjectID        ProjectID
	Name             string
	Description      string
	DefaultRateLimit uint32
	Now              clock.Slot
}

// CreateProject validates the inputs and builds a fresh project record
// with zeroed key counters. The creating principal becomes the initial
// authority.
func (r *Registry) CreateProject(p CreateProjectParams) (*Project, []Notification, error) {
	if err := validateProjectName(p.Name); err != nil {
		return nil, nil, err
	}
	if err := validateProjectDescription(p.Description); err != nil {
		return nil, nil, err
	}
	if err := validateRateLimit(p.DefaultRateLimit); err != nil {
		return nil, nil, err
	}

	project := &Project{
		Addr:             p.Addr,
		Authority:        p.Authority,
		ProjectID:        p.ProjectID,
		Name:             p.Name,
		Description:      p.Description,
		DefaultRateLimit: p.DefaultRateLimit,
		TotalKeys:        0,
		ActiveKeys:       0,
		CreatedAt:        p.Now,
	}

	notifications := []Notification{{
		Type:      NotifyProjectCreated,
		Project:   project.Addr,
		Authority: p.Authority,
		ProjectID: p.ProjectID,
		Name:      p.Name,
	}}
	return project, notifications, nil
}

// TransferAuthority hands control of the project to a new principal.
// Only the stored authority field changes. The project ref stays bound
// to the original owner, so existing key refs remain valid.
func (r *Registry) TransferAuthority(project *Project, caller, newAuthority Principal) ([]Notification, error) {
	if err := requireAuthority(project, caller); err != nil {
		return nil, err
	}

	old := project.Authority
	project.Authority = newAuthority

	return []Notification{{
		Type:         NotifyProjectAuthorityTransferred,
		Project:      project.Addr,
		OldAuthority: old,
		NewAuthority: newAuthority,
	}}, nil
}
