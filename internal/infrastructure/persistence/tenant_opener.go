package persistence

import (
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
)

var _ tenant.Database = (*Database)(nil)

// TenantOpener returns the opener the tenant registry uses to reach
// tenant databases. A database that has not been provisioned yet
// surfaces as shared.ErrTenantNotProvisioned.
func TenantOpener(opts Options) tenant.Opener {
	return func(dsn string) (tenant.Database, error) {
		db, err := Open(dsn, opts)
		if err != nil {
			if IsDatabaseNotExist(err) {
				return nil, shared.ErrTenantNotProvisioned
			}
			return nil, err
		}
		return db, nil
	}
}
