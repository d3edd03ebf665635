package tenant

import "time"

// Tenant is one connected external account polled independently.
type Tenant struct {
	ID             string
	CompanyName    *string
	OwnerEmail     *string
	Active         bool
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
}

// Name returns a loggable display name for the tenant.
func (t Tenant) Name() string {
	if t.CompanyName != nil && *t.CompanyName != "" {
		return *t.CompanyName
	}
	return t.ID
}
