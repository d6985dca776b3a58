package tenant

import "errors"

var (
	// ErrTenantNotFound means the tenant is absent from the meta database.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotActive means the tenant exists but is suspended or deleted.
	ErrTenantNotActive = errors.New("tenant is not active")

	// ErrMaxPoolLimit means the manager hit its open-pool ceiling.
	ErrMaxPoolLimit = errors.New("max tenant pool limit reached")
)
