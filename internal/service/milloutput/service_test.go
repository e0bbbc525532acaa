package milloutput

import (
	"context"
	"database/sql"
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
	milloutputrepo "github.com/millflow/millflow/internal/repository/milloutput"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	registryrepo "github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var testCaller = audit.Caller{UserID: "u-1", Username: "tester"}

type fixture struct {
	svc   *Service
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
	cfg := config.Config{Audit: config.Audit{QueueSize: 64, Writers: 1, WriteTimeout: time.Second}}
	recorder := audit.NewRecorder(cfg, store, zap.NewNop())
	recorder.Start()
	t.Cleanup(func() { _ = recorder.Stop(context.Background()) })

	registry := registryrepo.NewRepository(conns)
	party := &entity.Party{Name: "Shree Textiles", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateParty(ctx, party))

	orders := orderrepo.NewRepository(conns)
	now := time.Now().UTC()
	order := &entity.Order{
		OrderID:   5,
		Type:      entity.OrderTypePrinting,
		Status:    entity.OrderStatusPending,
		PartyID:   party.ID,
		Items:     []*entity.OrderItem{{Quantity: 100}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, orders.Create(ctx, order))

	svc := NewService(Params{
		Repository: milloutputrepo.NewRepository(conns),
		Orders:     orders,
		Registry:   registry,
		Logger:     zap.NewNop(),
		Recorder:   recorder,
	})

	return &fixture{svc: svc, order: order}
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)

	output, err := f.svc.Create(context.Background(), f.order.ID, Input{
		RecdDate:    time.Now().UTC(),
		MillBillNo:  "MB-1",
		FinishedMtr: 480,
		MillRate:    6.25,
	}, testCaller)
	require.NoError(t, err)

	assert.Equal(t, f.order.OrderID, output.OrderID)
	assert.Equal(t, float64(480), output.FinishedMtr)
}

func TestService_Create_RepeatedBillNumbersAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A mill may raise several bills against one order, even with the same
	// bill number.
	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(ctx, f.order.ID, Input{MillBillNo: "MB-1", FinishedMtr: 100}, testCaller)
		require.NoError(t, err)
	}

	outputs, count, err := f.svc.ListByOrder(ctx, f.order.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, outputs, 2)
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.order.ID, Input{FinishedMtr: 0}, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.Create(ctx, f.order.ID, Input{FinishedMtr: 10, MillRate: -1}, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.Create(ctx, 404, Input{FinishedMtr: 10}, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	output, err := f.svc.Create(ctx, f.order.ID, Input{MillBillNo: "MB-1", FinishedMtr: 100, MillRate: 5}, testCaller)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, output.ID, Input{MillBillNo: "MB-1/A", FinishedMtr: 95, MillRate: 5}, testCaller)
	require.NoError(t, err)
	assert.Equal(t, "MB-1/A", updated.MillBillNo)
	assert.Equal(t, float64(95), updated.FinishedMtr)
	assert.Equal(t, output.OrderPK, updated.OrderPK)

	require.NoError(t, f.svc.Delete(ctx, output.ID, testCaller))
	_, err = f.svc.Get(ctx, output.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
