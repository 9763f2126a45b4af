// Package provisioning wires the queue topics to their handlers: tenant
// database creation, order payment processing, and order completion.
// Handlers are idempotent so at-least-once delivery is safe.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/identity"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/domain/trade"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/provenant/backend/internal/infrastructure/provisioning"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/provenant/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TxRunner runs a function inside a transaction on the tenant database
// resolved from the context. Repositories called with the inner context
// join the same transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WorkerService executes background jobs delivered through the queue
type WorkerService struct {
	provisioner *provisioning.Provisioner
	userRepo    identity.UserRepository
	orderRepo   trade.OrderRepository
	productRepo catalog.ProductRepository
	publisher   queue.Publisher
	tx          TxRunner
	logger      *zap.Logger
}

// NewWorkerService creates a new worker service
func NewWorkerService(
	provisioner *provisioning.Provisioner,
	userRepo identity.UserRepository,
	orderRepo trade.OrderRepository,
	productRepo catalog.ProductRepository,
	publisher queue.Publisher,
	tx TxRunner,
	log *zap.Logger,
) *WorkerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerService{
		provisioner: provisioner,
		userRepo:    userRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		publisher:   publisher,
		tx:          tx,
		logger:      log,
	}
}

// Register subscribes every topic handler on the queue
func (s *WorkerService) Register(q interface {
	Subscribe(topic string, handler queue.Handler)
}) {
	q.Subscribe(queue.TopicTenantDatabaseCreation, s.HandleTenantDatabaseCreation)
	q.Subscribe(queue.TopicOrderProcessing, s.HandleOrderProcessing)
	q.Subscribe(queue.TopicOrderCompleted, s.HandleOrderCompleted)
}

// HandleTenantDatabaseCreation provisions the database for a freshly
// registered tenant and flips the owner's ready flag
func (s *WorkerService) HandleTenantDatabaseCreation(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.TenantDatabaseCreationMessage](payload)
	if err != nil {
		return fmt.Errorf("decode tenant creation message: %w", err)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "provisioning", "createTenantDatabase",
		telemetry.WithAttribute(telemetry.SpanAttrTenantCode, msg.TenantCode))
	defer span.End()

	log := logger.WithLogger(ctx, s.logger).With(zap.String("tenant_code", msg.TenantCode))
	log.Info("Provisioning tenant database")

	if err := s.provisioner.Provision(ctx, msg.TenantCode); err != nil {
		telemetry.RecordError(span, err)
		log.Error("Tenant provisioning failed", zap.Error(err))
		return err
	}

	if err := s.userRepo.MarkDatabaseReady(ctx, msg.TenantCode); err != nil {
		// Provisioning itself succeeded and is idempotent, so the
		// redelivery only needs to retry the flag flip
		log.Error("Failed to mark tenant database ready", zap.Error(err))
		return err
	}

	log.Info("Tenant database provisioned")
	return nil
}

// HandleOrderProcessing runs the payment step: stamp a payment
// reference, decrement stock, and hand the order to completion.
// The payment link and notification mail are stubs for now.
func (s *WorkerService) HandleOrderProcessing(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.OrderProcessingMessage](payload)
	if err != nil {
		return fmt.Errorf("decode order processing message: %w", err)
	}

	ctx = tenant.WithCode(ctx, msg.TenantCode)
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "processPayment",
		telemetry.WithAttribute(telemetry.SpanAttrTenantCode, msg.TenantCode),
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, msg.OrderID))
	defer span.End()

	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("tenant_code", msg.TenantCode),
		zap.String("order_id", msg.OrderID))

	orderID, err := uuid.Parse(msg.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", msg.OrderID, err)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Order not found for payment processing", zap.Error(err))
		return err
	}

	// Redelivered message after a previous success
	if order.Status != trade.OrderStatusWaitingForPayment {
		log.Info("Order already past payment, skipping",
			zap.String("status", order.Status.String()))
		return nil
	}

	log.Info("Payment link would be sent to customer here")

	paymentID := "pay_" + uuid.New().String()
	if err := order.MarkPaid(paymentID); err != nil {
		return err
	}

	// Every stock decrement and the status flip commit together, so a
	// redelivered message never sees a half-applied order.
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		for _, item := range order.Items {
			product, err := s.productRepo.FindByID(ctx, item.ProductID)
			if err != nil {
				log.Error("Product missing during stock decrement",
					zap.String("product_id", item.ProductID.String()), zap.Error(err))
				return err
			}
			if err := product.ReserveStock(item.Quantity); err != nil {
				if errors.Is(err, shared.ErrInsufficientStock) {
					log.Warn("Stock drained before payment, order stays unpaid",
						zap.String("product_id", item.ProductID.String()))
				}
				return err
			}
			if err := s.productRepo.Update(ctx, product); err != nil {
				return err
			}
		}
		return s.orderRepo.Update(ctx, order)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	completed := queue.OrderCompletedMessage{TenantCode: msg.TenantCode, OrderID: msg.OrderID}
	if err := s.publisher.Publish(ctx, queue.TopicOrderCompleted, completed); err != nil {
		log.Error("Failed to enqueue order completion", zap.Error(err))
		return err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, paymentID)
	log.Info("Order paid", zap.String("payment_id", paymentID))
	return nil
}

// HandleOrderCompleted finalizes a paid order
func (s *WorkerService) HandleOrderCompleted(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.OrderCompletedMessage](payload)
	if err != nil {
		return fmt.Errorf("decode order completed message: %w", err)
	}

	ctx = tenant.WithCode(ctx, msg.TenantCode)
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("tenant_code", msg.TenantCode),
		zap.String("order_id", msg.OrderID))

	orderID, err := uuid.Parse(msg.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", msg.OrderID, err)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		log.Error("Order not found for completion", zap.Error(err))
		return err
	}

	if order.Status == trade.OrderStatusComplete {
		log.Info("Order already complete, skipping")
		return nil
	}

	if err := order.Complete(); err != nil {
		return err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	log.Info("Order completed")
	return nil
}

// TenantMigrationResult reports the outcome of one tenant's replay
type TenantMigrationResult struct {
	TenantCode string `json:"tenant_code"`
	Database   string `json:"database"`
	Error      string `json:"error,omitempty"`
}

// MigrateAllTenants replays pending migrations on every provisioned
// tenant database. Failures are collected per tenant, not fatal.
func (s *WorkerService) MigrateAllTenants(ctx context.Context) ([]TenantMigrationResult, error) {
	admins, err := s.userRepo.FindAdminsWithTenant(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	log := logger.WithLogger(ctx, s.logger)
	results := make([]TenantMigrationResult, 0, len(admins))

	for _, admin := range admins {
		if !admin.DatabaseReady {
			continue
		}

		code := admin.TenantCodeOrEmpty()
		result := TenantMigrationResult{
			TenantCode: code,
			Database:   s.provisioner.DatabaseName(code),
		}

		if err := s.provisioner.MigrateExisting(ctx, code); err != nil {
			log.Error("Tenant migration failed",
				zap.String("tenant_code", code), zap.Error(err))
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	return results, nil
}
