package dispatch

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
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/internal/messaging"
	dispatchrepo "github.com/millflow/millflow/internal/repository/dispatch"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	registryrepo "github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var testCaller = audit.Caller{UserID: "u-1", Username: "tester"}

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
	svc   *Service
	pub   *capturePublisher
	order *entity.Order
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
		Messaging: config.Messaging{Enabled: true, Kafka: config.Kafka{Topic: "test.events"}},
		Audit:     config.Audit{QueueSize: 64, Writers: 1, WriteTimeout: time.Second},
	}
	recorder := audit.NewRecorder(cfg, store, zap.NewNop())
	recorder.Start()
	t.Cleanup(func() { _ = recorder.Stop(context.Background()) })

	registry := registryrepo.NewRepository(conns)
	party := &entity.Party{Name: "Shree Textiles", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateParty(ctx, party))

	orders := orderrepo.NewRepository(conns)
	now := time.Now().UTC()
	order := &entity.Order{
		OrderID:   1,
		Type:      entity.OrderTypeDying,
		Status:    entity.OrderStatusPending,
		PartyID:   party.ID,
		Items:     []*entity.OrderItem{{Quantity: 100}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, orders.Create(ctx, order))

	pub := &capturePublisher{}
	svc := NewService(Params{
		Repository: dispatchrepo.NewRepository(conns),
		Orders:     orders,
		Registry:   registry,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Recorder:   recorder,
		Publisher:  pub,
	})

	return &fixture{svc: svc, pub: pub, order: order}
}

func TestService_Create_ComputesTotalValue(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), f.order.ID, Input{
		DispatchDate: time.Now().UTC(),
		BillNo:       "BILL-1",
		FinishMtr:    250,
		SaleRate:     12.5,
	}, testCaller)
	require.NoError(t, err)

	assert.Equal(t, 250*12.5, d.TotalValue)
	assert.Equal(t, f.order.OrderID, d.OrderID)
	assert.Equal(t, f.order.ID, d.OrderPK)
}

func TestService_Create_ZeroRateIsFree(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), f.order.ID, Input{
		FinishMtr: 100,
		SaleRate:  0,
	}, testCaller)
	require.NoError(t, err)
	assert.Zero(t, d.TotalValue)
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 0, SaleRate: 5}, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 10, SaleRate: -1}, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	missing := int64(404)
	_, err = f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 10, QualityID: &missing}, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	_, err = f.svc.Create(ctx, 404, Input{FinishMtr: 10}, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Create_PublishesEvent(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), f.order.ID, Input{FinishMtr: 40, SaleRate: 2}, testCaller)
	require.NoError(t, err)

	require.Len(t, f.pub.payloads, 1)
	var event DispatchCreatedEvent
	require.NoError(t, json.Unmarshal(f.pub.payloads[0], &event))
	assert.Equal(t, EventKindDispatchCreated, event.Kind)
	assert.Equal(t, d.ID, event.ID)
	assert.Equal(t, f.order.ID, event.OrderPK)
	assert.Equal(t, float64(80), event.TotalValue)
}

func TestService_Update_RecomputesTotalValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 100, SaleRate: 10}, testCaller)
	require.NoError(t, err)
	require.Equal(t, float64(1000), d.TotalValue)

	updated, err := f.svc.Update(ctx, d.ID, Input{FinishMtr: 90, SaleRate: 11}, testCaller)
	require.NoError(t, err)
	assert.Equal(t, float64(990), updated.TotalValue)
	assert.Equal(t, d.OrderPK, updated.OrderPK)
}

func TestService_ListByOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 10, SaleRate: 1}, testCaller)
		require.NoError(t, err)
	}

	dispatches, count, err := f.svc.ListByOrder(ctx, f.order.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, dispatches, 2)

	_, _, err = f.svc.ListByOrder(ctx, 404, 1, 10)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.order.ID, Input{FinishMtr: 10, SaleRate: 1}, testCaller)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, d.ID, testCaller))
	_, err = f.svc.Get(ctx, d.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
