// Package queue provides at-least-once background job delivery on
// Redis Streams. Each topic is one stream consumed by a consumer
// group; unacknowledged deliveries are reclaimed after an idle period.
package queue

import (
	"context"
	"encoding/json"
)

// Topics
const (
	TopicTenantDatabaseCreation = "tenant-database-creation"
	TopicOrderProcessing        = "order-processing"
	TopicOrderCompleted         = "order-completed"
)

// TenantDatabaseCreationMessage asks the worker to provision the
// database for a freshly registered tenant
type TenantDatabaseCreationMessage struct {
	TenantCode string `json:"tenantCode"`
}

// OrderProcessingMessage asks the worker to run the payment step for
// an order
type OrderProcessingMessage struct {
	TenantCode string `json:"tenantCode"`
	OrderID    string `json:"orderId"`
}

// OrderCompletedMessage asks the worker to finalize a paid order
type OrderCompletedMessage struct {
	TenantCode string `json:"tenantCode"`
	OrderID    string `json:"orderId"`
}

// Handler processes one message payload. Returning an error leaves the
// delivery unacknowledged so it is retried later.
type Handler func(ctx context.Context, payload []byte) error

// Publisher enqueues messages
type Publisher interface {
	Publish(ctx context.Context, topic string, message any) error
}

// Decode unmarshals a payload into a typed message
func Decode[T any](payload []byte) (T, error) {
	var msg T
	err := json.Unmarshal(payload, &msg)
	return msg, err
}
