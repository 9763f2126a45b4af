package cache

import (
	"context"
	"testing"
	"time"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(enabled bool) *Store {
	// Unroutable client: proves cache problems never become errors
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return NewStore(client, config.CacheConfig{Enabled: enabled, DefaultTTL: time.Minute}, nil)
}

func TestKeyNamespaces(t *testing.T) {
	store := newTestStore(true)

	t.Run("no tenant uses default namespace", func(t *testing.T) {
		key := store.Key(context.Background(), ProductList, nil)
		assert.Equal(t, "default:catalog:products.list", key)
	})

	t.Run("tenant in context namespaces the key", func(t *testing.T) {
		ctx := tenant.WithCode(context.Background(), "acme")
		key := store.Key(ctx, ProductList, nil)
		assert.Equal(t, "acme:catalog:products.list", key)
	})

	t.Run("force default overrides the tenant", func(t *testing.T) {
		ctx := tenant.WithCode(context.Background(), "acme")
		key := store.Key(ctx, CustomerOrderList, nil)
		assert.Equal(t, "default:trade:orders.customerList", key)
	})

	t.Run("arguments extend the key", func(t *testing.T) {
		key := store.Key(context.Background(), ProductGet, map[string]any{"id": "p-1"})
		assert.Equal(t, `default:catalog:products.get:{"id":"p-1"}`, key)
	})
}

func TestKeyFingerprintDeterministic(t *testing.T) {
	store := newTestStore(true)
	ctx := context.Background()

	a := store.Key(ctx, ProductList, map[string]any{"page": 2, "keyword": "mug"})
	b := store.Key(ctx, ProductList, map[string]any{"keyword": "mug", "page": 2})
	assert.Equal(t, a, b)

	c := store.Key(ctx, ProductList, map[string]any{"keyword": "mug", "page": 3})
	assert.NotEqual(t, a, c)
}

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"sorts nested keys", map[string]any{"b": map[string]any{"z": 1, "a": 2}, "a": 1}, `{"a":1,"b":{"a":2,"z":1}}`},
		{"preserves array order", []any{3, 1, 2}, `[3,1,2]`},
		{"struct fields become sorted keys", struct {
			Zed string `json:"zed"`
			Abc string `json:"abc"`
		}{"z", "a"}, `{"abc":"a","zed":"z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := canonicalJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisabledStoreIsInert(t *testing.T) {
	store := newTestStore(false)
	ctx := context.Background()

	var dest string
	assert.False(t, store.Get(ctx, "default:catalog:products.list", &dest))

	// No panic and no network use when disabled
	store.Set(ctx, "k", "v", time.Minute)
	store.Delete(ctx, "k")
	store.DeletePattern(ctx, "k*")
}

func TestGetFailureReadsAsMiss(t *testing.T) {
	store := newTestStore(true)

	var dest string
	hit := store.Get(context.Background(), "default:catalog:products.list", &dest)
	assert.False(t, hit)
	assert.Empty(t, dest)
}

func TestTargetsFor(t *testing.T) {
	targets := TargetsFor("orders.create")
	require.Len(t, targets, 3)
	assert.True(t, targets[2].ForceDefaultTenant)

	assert.Nil(t, TargetsFor("no.such.operation"))
}
