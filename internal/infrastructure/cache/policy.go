package cache

import "time"

// Target identifies a group of cache entries for invalidation
type Target struct {
	Scope              string
	Operation          string
	ForceDefaultTenant bool
}

// Scopes used across the application
const (
	ScopeCatalog = "catalog"
	ScopeTrade   = "trade"
)

// Read operations and their cache options. Additions here need a
// matching entry in WritePolicies for every operation that mutates the
// same data.
var (
	ProductList = Options{
		Scope:     ScopeCatalog,
		Operation: "products.list",
		TTL:       5 * time.Minute,
	}
	ProductGet = Options{
		Scope:     ScopeCatalog,
		Operation: "products.get",
		TTL:       5 * time.Minute,
	}

	// Customer order lists live in the default database regardless of
	// which store the order was placed in
	CustomerOrderList = Options{
		Scope:              ScopeTrade,
		Operation:          "orders.customerList",
		TTL:                time.Minute,
		ForceDefaultTenant: true,
	}
)

// WritePolicies maps mutating operations to the cached reads they
// invalidate
var WritePolicies = map[string][]Target{
	"products.create": {
		{Scope: ScopeCatalog, Operation: "products.list"},
	},
	"products.update": {
		{Scope: ScopeCatalog, Operation: "products.list"},
		{Scope: ScopeCatalog, Operation: "products.get"},
	},
	"products.delete": {
		{Scope: ScopeCatalog, Operation: "products.list"},
		{Scope: ScopeCatalog, Operation: "products.get"},
	},
	"orders.create": {
		{Scope: ScopeCatalog, Operation: "products.list"},
		{Scope: ScopeCatalog, Operation: "products.get"},
		{Scope: ScopeTrade, Operation: "orders.customerList", ForceDefaultTenant: true},
	},
	"orders.statusChange": {
		{Scope: ScopeTrade, Operation: "orders.customerList", ForceDefaultTenant: true},
	},
}

// TargetsFor returns the invalidation targets of a mutating operation
func TargetsFor(operation string) []Target {
	return WritePolicies[operation]
}
