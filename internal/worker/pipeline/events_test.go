package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/cache"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/messaging"
	dispatchsvc "github.com/millflow/millflow/internal/service/dispatch"
	ordersvc "github.com/millflow/millflow/internal/service/order"
)

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func newHandler(store cache.Store) (messaging.Handler, string) {
	cfg := config.Config{Messaging: config.Messaging{Kafka: config.Kafka{Topic: "test.events"}}}
	reg := NewEventsHandler(zap.NewNop(), cfg, store)
	return reg.Handler, reg.Topic
}

func TestEventsHandler_OrderCreated_BumpsPartyCounter(t *testing.T) {
	store := newMemCache()
	handler, topic := newHandler(store)
	assert.Equal(t, "test.events", topic)

	payload, err := json.Marshal(ordersvc.OrderCreatedEvent{
		Kind:    ordersvc.EventKindOrderCreated,
		ID:      1,
		OrderID: 41,
		PartyID: 7,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, handler(context.Background(), messaging.Message{Topic: topic, Value: payload}))
	}

	assert.Equal(t, []byte("3"), store.data["counters:party:7:orders"])
}

func TestEventsHandler_DispatchCreated_BumpsOrderCounter(t *testing.T) {
	store := newMemCache()
	handler, topic := newHandler(store)

	payload, err := json.Marshal(dispatchsvc.DispatchCreatedEvent{
		Kind:       dispatchsvc.EventKindDispatchCreated,
		ID:         9,
		OrderPK:    3,
		TotalValue: 990,
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), messaging.Message{Topic: topic, Value: payload}))
	assert.Equal(t, []byte("1"), store.data["counters:order:3:dispatches"])
}

func TestEventsHandler_UnknownKindIgnored(t *testing.T) {
	store := newMemCache()
	handler, topic := newHandler(store)

	require.NoError(t, handler(context.Background(), messaging.Message{Topic: topic, Value: []byte(`{"kind":"order.archived"}`)}))
	assert.Empty(t, store.data)
}

func TestEventsHandler_MalformedPayloadErrors(t *testing.T) {
	store := newMemCache()
	handler, topic := newHandler(store)

	err := handler(context.Background(), messaging.Message{Topic: topic, Value: []byte("not json")})
	assert.Error(t, err)
}
