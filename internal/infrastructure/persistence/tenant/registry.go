package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// dsnFallbackPattern rescues tenant DSN derivation when the base DSN
// does not parse as a URL
var dsnFallbackPattern = regexp.MustCompile(`^(postgres(?:ql)?://[^/]+)/([^?]*)(\?.*)?$`)

// Database is the connection pool surface the registry manages. The
// persistence package provides the implementation; keeping this an
// interface here is what lets the gorm repositories live next to the
// opener without an import loop.
type Database interface {
	Gorm() *gorm.DB
	Close() error
	DSN() string
}

// Opener connects to the database behind a derived tenant DSN. A
// database that has not been provisioned yet must surface as
// shared.ErrTenantNotProvisioned.
type Opener func(dsn string) (Database, error)

// Registry manages one connection pool per tenant database. Pools are
// opened on first use and reused for the life of the process.
type Registry struct {
	defaultDB Database
	baseDSN   string
	prefix    string
	open      Opener
	log       *zap.Logger

	mu    sync.RWMutex
	pools map[string]Database
	group singleflight.Group
}

// NewRegistry creates a registry rooted at the default database.
// prefix is prepended to lowercased tenant codes to form database names.
func NewRegistry(defaultDB Database, prefix string, open Opener, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		defaultDB: defaultDB,
		baseDSN:   defaultDB.DSN(),
		prefix:    prefix,
		open:      open,
		log:       log.Named("tenant-registry"),
		pools:     make(map[string]Database),
	}
}

// DatabaseName returns the database name for a tenant code
func (r *Registry) DatabaseName(code string) string {
	return r.prefix + strings.ToLower(code)
}

// DSNFor derives the connection string for a tenant database from the
// default DSN, keeping credentials, host, and query parameters intact.
// If the DSN cannot be rewritten it is returned unchanged.
func (r *Registry) DSNFor(code string) string {
	name := r.DatabaseName(code)

	if u, err := url.Parse(r.baseDSN); err == nil && u.Host != "" {
		u.Path = "/" + name
		return u.String()
	}

	if m := dsnFallbackPattern.FindStringSubmatch(r.baseDSN); m != nil {
		return m[1] + "/" + name + m[3]
	}

	r.log.Warn("could not derive tenant DSN, using base DSN",
		zap.String("tenant_code", code))
	return r.baseDSN
}

// Default returns the default database
func (r *Registry) Default() Database {
	return r.defaultDB
}

// Get returns the connection pool for the tenant in the context, or the
// default database when no tenant is set. Concurrent first requests for
// the same tenant share a single connection attempt.
func (r *Registry) Get(ctx context.Context) (Database, error) {
	code, ok := CodeFromContext(ctx)
	if !ok {
		return r.defaultDB, nil
	}
	return r.GetByCode(ctx, code)
}

// GetByCode returns the connection pool for an explicit tenant code
func (r *Registry) GetByCode(ctx context.Context, code string) (Database, error) {
	code = strings.ToLower(code)

	r.mu.RLock()
	db, exists := r.pools[code]
	r.mu.RUnlock()
	if exists {
		return db, nil
	}

	if r.open == nil {
		return nil, fmt.Errorf("registry cannot open tenant database %q: no opener configured", r.DatabaseName(code))
	}

	v, err, _ := r.group.Do(code, func() (interface{}, error) {
		// Another goroutine may have won the race before this call
		r.mu.RLock()
		db, exists := r.pools[code]
		r.mu.RUnlock()
		if exists {
			return db, nil
		}

		opened, err := r.open(r.DSNFor(code))
		if err != nil {
			if errors.Is(err, shared.ErrTenantNotProvisioned) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to connect to tenant database %q: %w", r.DatabaseName(code), err)
		}

		r.mu.Lock()
		r.pools[code] = opened
		r.mu.Unlock()

		logger.L(ctx).Info("opened tenant database connection",
			zap.String("tenant_code", code),
			zap.String("database", r.DatabaseName(code)))

		return opened, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(Database), nil
}

// Disconnect closes and forgets the pool for one tenant. Used after a
// tenant database is dropped or re-provisioned.
func (r *Registry) Disconnect(code string) error {
	code = strings.ToLower(code)

	r.mu.Lock()
	db, exists := r.pools[code]
	delete(r.pools, code)
	r.mu.Unlock()

	if !exists {
		return nil
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close tenant database %q: %w", r.DatabaseName(code), err)
	}

	r.log.Info("closed tenant database connection", zap.String("tenant_code", code))
	return nil
}

// Close closes every tenant pool. The default database is owned by the
// caller and left open.
func (r *Registry) Close() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]Database)
	r.mu.Unlock()

	var firstErr error
	for code, db := range pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close tenant database %q: %w", code, err)
		}
	}
	return firstErr
}

// Codes returns the tenant codes with open pools
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.pools))
	for code := range r.pools {
		codes = append(codes, code)
	}
	return codes
}
