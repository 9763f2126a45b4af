package tenant

import (
	"context"

	"gorm.io/gorm"
)

// txKey carries an open transaction through the context so that every
// repository call inside a Transaction block lands on the same tx.
type txKey struct{}

// Scoped resolves the right database for each call site. Repositories
// hold a Scoped instead of a *gorm.DB so that every query lands in the
// database of the tenant carried by the request context.
type Scoped struct {
	registry *Registry
}

// NewScoped creates a Scoped facade over the registry
func NewScoped(registry *Registry) *Scoped {
	return &Scoped{registry: registry}
}

// DB returns a GORM handle bound to the context's tenant database, or
// the default database when no tenant is set. Inside a Transaction
// block the transaction handle is returned instead.
func (s *Scoped) DB(ctx context.Context) (*gorm.DB, error) {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx, nil
	}

	db, err := s.registry.Get(ctx)
	if err != nil {
		return nil, err
	}
	return db.Gorm().WithContext(ctx), nil
}

// DefaultDB returns a GORM handle bound to the default database
// regardless of the context's tenant
func (s *Scoped) DefaultDB(ctx context.Context) *gorm.DB {
	return s.registry.Default().Gorm().WithContext(ctx)
}

// Transaction runs fn inside one transaction on the context's tenant
// database. Repository calls made with the context passed to fn join
// that transaction, so a failure anywhere rolls back every write.
func (s *Scoped) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db, err := s.registry.Get(ctx)
	if err != nil {
		return err
	}
	return db.Gorm().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
