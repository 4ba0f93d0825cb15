package core

func validateProjectName(name string) error {
	if len(name) > MaxProjectNameLen {
		return WrapError(KindValidation, ErrNameTooLong)
	}
	return nil
}

func validateProjectDescription(desc string) error {
	if len(desc) > MaxProjectDescLen {
		return WrapError(KindValidation, ErrDescriptionTooLong)
	}
	return nil
}

func validateKeyName(name string) error {
	if len(name) > MaxKeyNameLen {
		return WrapError(KindValidation, ErrNameTooLong)
	}
	return nil
}

func validateScopes(scopes []string) error {
	if len(scopes) > MaxScopes {
		return WrapError(KindValidation, ErrTooManyScopes)
	}
	for _, s := range scopes {
		if len(s) > MaxScopeLen {
			return WrapError(KindValidation, ErrScopeTooLong)
		}
	}
	return nil
}

func validateRateLimit(limit uint32) error {
	if limit == 0 {
		return WrapError(KindValidation, ErrInvalidRateLimit)
	}
	return nil
}

// requireAuthority checks the caller against the stored authority.
// Authority can change over a project's lifetime, so the check always
// runs against the record, never the ref.
func requireAuthority(project *Project, caller Principal) error {
	if project.Authority != caller {
		return WrapError(KindUnauthorized, ErrUnauthorized)
	}
	return nil
}

func requireKeyOwnership(project *Project, key *APIKey) error {
	if key.Project != project.Addr {
		return WrapError(KindOwnership, ErrOwnershipMismatch)
	}
	return nil
}

func requireUsageOwnership(key *APIKey, usage *UsageWindow) error {
	if usage.APIKey != key.Addr {
		return WrapError(KindOwnership, ErrOwnershipMismatch)
	}
	return nil
}
