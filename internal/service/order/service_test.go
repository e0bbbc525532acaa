package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/cache"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/internal/messaging"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	registryrepo "github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var testCaller = audit.Caller{UserID: "u-1", Username: "tester", Role: "admin"}

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

type capturePublisher struct {
	payloads [][]byte
}

func (p *capturePublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	p.payloads = append(p.payloads, value)
	return nil
}

func (p *capturePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *capturePublisher) Topic() string { return "test.events" }

type fixture struct {
	svc      *Service
	store    *audit.Store
	recorder *audit.Recorder
	cache    *memCache
	pub      *capturePublisher
	party    *entity.Party
	quality  *entity.Quality
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateSchema(ctx, db))

	conns := &database.Connections{Writer: db, Reader: db}
	store := audit.NewStore(conns)

	cfg := config.Config{
		Cache: config.Cache{DefaultTTL: time.Minute},
		Messaging: config.Messaging{
			Enabled: true,
			Kafka:   config.Kafka{Topic: "test.events"},
		},
		Audit: config.Audit{QueueSize: 64, Writers: 1, WriteTimeout: time.Second},
	}

	recorder := audit.NewRecorder(cfg, store, zap.NewNop())
	recorder.Start()
	t.Cleanup(func() { _ = recorder.Stop(context.Background()) })

	registry := registryrepo.NewRepository(conns)
	party := &entity.Party{Name: "Shree Textiles", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateParty(ctx, party))
	quality := &entity.Quality{Name: "Cotton 60x60", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateQuality(ctx, quality))

	mem := newMemCache()
	pub := &capturePublisher{}
	svc := NewService(Params{
		Repository: orderrepo.NewRepository(conns),
		Registry:   registry,
		Cache:      mem,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Recorder:   recorder,
		Publisher:  pub,
	})

	return &fixture{
		svc:      svc,
		store:    store,
		recorder: recorder,
		cache:    mem,
		pub:      pub,
		party:    party,
		quality:  quality,
	}
}

func (f *fixture) input() Input {
	return Input{
		Type:        entity.OrderTypeDying,
		ArrivalDate: time.Now().UTC(),
		PartyID:     f.party.ID,
		Items: []ItemInput{
			{QualityID: &f.quality.ID, Quantity: 100, Description: "main lot"},
		},
	}
}

func TestService_Create_SequentialOrderIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.input(), testCaller)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.input(), testCaller)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.OrderID)
	assert.Equal(t, int64(2), second.OrderID)
	assert.Equal(t, entity.OrderStatusPending, first.Status)
	require.Len(t, first.Items, 1)
	require.NotNil(t, first.Items[0].Quality)
	assert.Equal(t, "Cotton 60x60", first.Items[0].Quality.Name)
}

func TestService_Create_PublishesEvent(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.Create(context.Background(), f.input(), testCaller)
	require.NoError(t, err)

	require.Len(t, f.pub.payloads, 1)
	var event OrderCreatedEvent
	require.NoError(t, json.Unmarshal(f.pub.payloads[0], &event))
	assert.Equal(t, EventKindOrderCreated, event.Kind)
	assert.Equal(t, order.ID, event.ID)
	assert.Equal(t, order.OrderID, event.OrderID)
	assert.Equal(t, f.party.ID, event.PartyID)
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.Type = "weaving"
	_, err := f.svc.Create(ctx, in, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	in = f.input()
	in.Items = nil
	_, err = f.svc.Create(ctx, in, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	in = f.input()
	in.Items[0].Quantity = 0
	_, err = f.svc.Create(ctx, in, testCaller)
	require.Error(t, err)
	assert.Contains(t, errorbank.From(err).Message(), "items[0]")

	in = f.input()
	in.PartyID = 404
	_, err = f.svc.Create(ctx, in, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	in = f.input()
	missing := int64(404)
	in.Items[0].QualityID = &missing
	_, err = f.svc.Create(ctx, in, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Create_POStyleConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.PONumber = "PO-1"
	in.StyleNo = "ST-9"
	_, err := f.svc.Create(ctx, in, testCaller)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, in, testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	// Orders without both identifiers never conflict.
	in.StyleNo = ""
	_, err = f.svc.Create(ctx, in, testCaller)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, in, testCaller)
	require.NoError(t, err)
}

func TestService_Get_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), 404)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Update_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.input(), testCaller)
	require.NoError(t, err)

	// Populate the cache, then update through the service.
	_, err = f.svc.Get(ctx, order.ID)
	require.NoError(t, err)

	in := f.input()
	in.Type = entity.OrderTypePrinting
	in.Items = []ItemInput{{Quantity: 42, Description: "reprint"}}
	updated, err := f.svc.Update(ctx, order.ID, in, testCaller)
	require.NoError(t, err)

	assert.Equal(t, entity.OrderTypePrinting, updated.Type)
	assert.Equal(t, order.OrderID, updated.OrderID, "order number survives updates")
	assert.Equal(t, order.Status, updated.Status, "status is not writable via update")
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "reprint", updated.Items[0].Description)

	got, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderTypePrinting, got.Type)
}

func TestService_UpdateStatus_Machine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.input(), testCaller)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "shipped", testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	updated, err := f.svc.UpdateStatus(ctx, order.ID, entity.OrderStatusDelivered, testCaller)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusDelivered, updated.Status)

	// Delivered is terminal.
	_, err = f.svc.UpdateStatus(ctx, order.ID, entity.OrderStatusDelivered, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestService_Delete_RecordsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.PONumber = "PO-7"
	in.StyleNo = "ST-7"
	order, err := f.svc.Create(ctx, in, testCaller)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, order.ID, testCaller))

	_, err = f.svc.Get(ctx, order.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	require.NoError(t, f.recorder.Stop(ctx))
	page, err := f.store.Search(ctx, audit.Query{
		Resource: audit.ResourceOrder,
		Action:   entity.AuditActionDelete,
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	snapshot := page.Entries[0].Details
	assert.Equal(t, "PO-7", snapshot["poNumber"])
	assert.Equal(t, "ST-7", snapshot["styleNo"])
	assert.Equal(t, entity.OrderStatusPending, snapshot["status"])
}
