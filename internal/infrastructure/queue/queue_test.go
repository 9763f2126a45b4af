package queue

import (
	"context"
	"testing"
	"time"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("decodes a typed message", func(t *testing.T) {
		msg, err := Decode[TenantDatabaseCreationMessage]([]byte(`{"tenantCode":"acme"}`))
		require.NoError(t, err)
		assert.Equal(t, "acme", msg.TenantCode)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		_, err := Decode[OrderProcessingMessage]([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestStreamQueuePublish(t *testing.T) {
	t.Run("rejects unencodable messages", func(t *testing.T) {
		q := NewStreamQueue(nil, config.QueueConfig{MaxPublishTry: 1}, nil)

		err := q.Publish(context.Background(), TopicOrderProcessing, make(chan int))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to encode")
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		// Port 1 is never a Redis server
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
		q := NewStreamQueue(client, config.QueueConfig{MaxPublishTry: 2}, nil)

		err := q.Publish(context.Background(), TopicOrderProcessing, OrderProcessingMessage{
			TenantCode: "acme",
			OrderID:    "o-1",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}
