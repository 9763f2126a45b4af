package provisioning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/trade"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLiteScoped(t *testing.T) *tenant.Scoped {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(
		&trade.Order{}, &trade.OrderItem{}, &catalog.Product{}))

	// Every tenant code resolves to the same in-memory database
	db := &persistence.Database{DB: gormDB}
	opener := func(string) (tenant.Database, error) { return db, nil }
	registry := tenant.NewRegistry(db, "provenant_", opener, nil)
	return tenant.NewScoped(registry)
}

// A failure on any item must roll back every stock decrement already
// applied, otherwise a broker redelivery would decrement twice.
func TestHandleOrderProcessingRollsBackStockOnFailure(t *testing.T) {
	scoped := newSQLiteScoped(t)
	orders := persistence.NewGormOrderRepository(scoped)
	products := persistence.NewGormProductRepository(scoped)
	ctx := context.Background()

	grinder, err := catalog.NewProduct("Grinder", "", decimal.NewFromInt(89), 5)
	require.NoError(t, err)
	require.NoError(t, products.Create(ctx, grinder))

	missingID := uuid.New()

	order, err := trade.NewOrder(uuid.New(), "acme")
	require.NoError(t, err)
	require.NoError(t, order.AddItem(grinder.ID, "Grinder", 2, decimal.NewFromInt(89)))
	require.NoError(t, order.AddItem(missingID, "Phantom", 1, decimal.NewFromInt(10)))
	require.NoError(t, order.AwaitPayment())
	require.NoError(t, orders.Create(ctx, order))

	pub := new(MockPublisher)
	svc := NewWorkerService(nil, nil, orders, products, pub, scoped, zap.NewNop())

	payload := encode(t, queue.OrderProcessingMessage{TenantCode: "acme", OrderID: order.ID.String()})
	require.Error(t, svc.HandleOrderProcessing(ctx, payload))

	reloaded, err := products.FindByID(ctx, grinder.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Stock, "decrement for the first item must not survive the failure")

	found, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.OrderStatusWaitingForPayment, found.Status)
	pub.AssertNotCalled(t, "Publish")
}
