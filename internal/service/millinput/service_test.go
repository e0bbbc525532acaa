package millinput

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
	millinputrepo "github.com/millflow/millflow/internal/repository/millinput"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	registryrepo "github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var testCaller = audit.Caller{UserID: "u-1", Username: "tester"}

type fixture struct {
	svc     *Service
	orders  *orderrepo.Repository
	mill    *entity.Mill
	quality *entity.Quality
	orderA  *entity.Order
	orderB  *entity.Order
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
	mill := &entity.Mill{Name: "Surat Process House", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateMill(ctx, mill))
	quality := &entity.Quality{Name: "Rayon 14kg", CreatedAt: time.Now().UTC()}
	require.NoError(t, registry.CreateQuality(ctx, quality))

	orders := orderrepo.NewRepository(conns)
	orderA := seedOrder(t, orders, party.ID, 1)
	orderB := seedOrder(t, orders, party.ID, 2)

	svc := NewService(Params{
		Repository: millinputrepo.NewRepository(conns),
		Orders:     orders,
		Registry:   registry,
		Logger:     zap.NewNop(),
		Recorder:   recorder,
	})

	return &fixture{svc: svc, orders: orders, mill: mill, quality: quality, orderA: orderA, orderB: orderB}
}

func seedOrder(t *testing.T, repo *orderrepo.Repository, partyID, orderID int64) *entity.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &entity.Order{
		OrderID:   orderID,
		Type:      entity.OrderTypeDying,
		Status:    entity.OrderStatusPending,
		PartyID:   partyID,
		Items:     []*entity.OrderItem{{Quantity: 100}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func (f *fixture) input(chalan string) Input {
	return Input{
		MillID:    f.mill.ID,
		MillDate:  time.Now().UTC(),
		ChalanNo:  chalan,
		GreighMtr: 500,
		Pcs:       10,
		QualityID: &f.quality.ID,
	}
}

func TestService_Create_DenormalizesOrderNumber(t *testing.T) {
	f := newFixture(t)

	input, err := f.svc.Create(context.Background(), f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)

	assert.Equal(t, f.orderA.OrderID, input.OrderID)
	assert.Equal(t, f.orderA.ID, input.OrderPK)
	require.NotNil(t, input.Mill)
	assert.Equal(t, "Surat Process House", input.Mill.Name)
}

func TestService_Create_ChalanUniquePerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	// Mills number their own slips, so the same chalan on another order is
	// legitimate.
	_, err = f.svc.Create(ctx, f.orderB.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input("")
	_, err := f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	in = f.input("CH-2")
	in.GreighMtr = 0
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	in = f.input("CH-2")
	in.Pcs = -1
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	// Zero pieces is as invalid as negative.
	in = f.input("CH-2")
	in.Pcs = 0
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	in = f.input("CH-2")
	in.MillID = 404
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	in = f.input("CH-2")
	in.Meters = []MeterInput{{GreighMtr: 0}}
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	require.Error(t, err)
	assert.Contains(t, errorbank.From(err).Message(), "meters[0]")

	in = f.input("CH-2")
	in.Meters = []MeterInput{{GreighMtr: 50, Pcs: 0}}
	_, err = f.svc.Create(ctx, f.orderA.ID, in, testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	assert.Contains(t, errorbank.From(err).Message(), "meters[0]")

	_, err = f.svc.Create(ctx, 404, f.input("CH-2"), testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Create_WithMeters(t *testing.T) {
	f := newFixture(t)

	in := f.input("CH-1")
	in.Meters = []MeterInput{
		{GreighMtr: 120, Pcs: 2, ProcessName: "dying"},
		{GreighMtr: 80, Pcs: 1},
	}
	created, err := f.svc.Create(context.Background(), f.orderA.ID, in, testCaller)
	require.NoError(t, err)
	require.Len(t, created.AdditionalMeters, 2)
	assert.Equal(t, float64(120), created.AdditionalMeters[0].GreighMtr)
	assert.Equal(t, "dying", created.AdditionalMeters[0].ProcessName)
}

func TestService_Update_RecheckChalan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.orderA.ID, f.input("CH-2"), testCaller)
	require.NoError(t, err)

	// Renaming onto a sibling's chalan is a conflict.
	_, err = f.svc.Update(ctx, second.ID, f.input("CH-1"), testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	// Keeping its own chalan is fine.
	in := f.input("CH-2")
	in.GreighMtr = 750
	updated, err := f.svc.Update(ctx, second.ID, in, testCaller)
	require.NoError(t, err)
	assert.Equal(t, float64(750), updated.GreighMtr)
	assert.Equal(t, first.OrderPK, updated.OrderPK)
}

func TestService_ListByOrder_ScopedToOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.orderA.ID, f.input("CH-2"), testCaller)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.orderB.ID, f.input("CH-3"), testCaller)
	require.NoError(t, err)

	inputs, count, err := f.svc.ListByOrder(ctx, f.orderA.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, inputs, 2)

	_, _, err = f.svc.ListByOrder(ctx, 404, 1, 10)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Delete_FreesChalan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, created.ID, testCaller))

	_, err = f.svc.Get(ctx, created.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	// The chalan number is reusable once the row is gone.
	_, err = f.svc.Create(ctx, f.orderA.ID, f.input("CH-1"), testCaller)
	require.NoError(t, err)
}
