package lab

import (
	"context"
	"database/sql"
	"fmt"
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
	labrepo "github.com/millflow/millflow/internal/repository/lab"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
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

	party := &entity.Party{Name: "Shree Textiles", CreatedAt: time.Now().UTC()}
	_, err = db.NewInsert().Model(party).Exec(ctx)
	require.NoError(t, err)

	orders := orderrepo.NewRepository(conns)
	now := time.Now().UTC()
	order := &entity.Order{
		OrderID: 41,
		Type:    entity.OrderTypeDying,
		Status:  entity.OrderStatusPending,
		PartyID: party.ID,
		Items: []*entity.OrderItem{
			{Quantity: 100, Description: "lot one"},
			{Quantity: 60, Description: "lot two"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, orders.Create(ctx, order))
	loaded, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)

	svc := NewService(Params{
		Repository: labrepo.NewRepository(conns),
		Orders:     orders,
		Logger:     zap.NewNop(),
		Recorder:   recorder,
	})

	return &fixture{svc: svc, order: loaded}
}

func (f *fixture) itemID(i int) int64 {
	return f.order.Items[i].ID
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)

	lab, err := f.svc.Create(context.Background(), f.order.ID, Input{
		OrderItemID:   f.itemID(0),
		LabSendDate:   time.Now().UTC(),
		LabSendNumber: "LAB-41-1",
		SendData:      entity.LabSendData{Color: "indigo", Shade: "dark"},
	}, testCaller)
	require.NoError(t, err)

	assert.Equal(t, entity.LabStatusSent, lab.Status)
	assert.False(t, lab.SoftDeleted)
	assert.Equal(t, "indigo", lab.SendData.Color)
}

func TestService_Create_ItemMustBelongToOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.order.ID, Input{OrderItemID: 404}, testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_Create_SecondActiveLabRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0)}, testCaller)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0)}, testCaller)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	// A different item is unaffected.
	_, err = f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(1)}, testCaller)
	require.NoError(t, err)
}

func TestService_SoftDelete_FreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0)}, testCaller)
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, first.ID, testCaller))

	// The record survives for reads but is hidden from the active list.
	got, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.SoftDeleted)

	active, err := f.svc.ListByOrder(ctx, f.order.ID, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.svc.ListByOrder(ctx, f.order.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The slot is free for a replacement.
	_, err = f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0)}, testCaller)
	require.NoError(t, err)

	// Deleting twice is a not-found, as is any other mutation.
	err = f.svc.SoftDelete(ctx, first.ID, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
	_, err = f.svc.Update(ctx, first.ID, Input{LabSendNumber: "X"}, testCaller)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_UpdateStatus_Machine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lab, err := f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0)}, testCaller)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, lab.ID, "sent", testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	updated, err := f.svc.UpdateStatus(ctx, lab.ID, entity.LabStatusReceived, testCaller)
	require.NoError(t, err)
	assert.Equal(t, entity.LabStatusReceived, updated.Status)

	// Received is terminal.
	_, err = f.svc.UpdateStatus(ctx, lab.ID, entity.LabStatusCancelled, testCaller)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestService_Update_KeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lab, err := f.svc.Create(ctx, f.order.ID, Input{OrderItemID: f.itemID(0), LabSendNumber: "LAB-41-1"}, testCaller)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, lab.ID, Input{
		LabSendNumber: "LAB-41-1-R",
		SendData:      entity.LabSendData{Color: "crimson"},
		Remarks:       "resend",
	}, testCaller)
	require.NoError(t, err)

	assert.Equal(t, "LAB-41-1-R", updated.LabSendNumber)
	assert.Equal(t, "crimson", updated.SendData.Color)
	assert.Equal(t, entity.LabStatusSent, updated.Status)
	assert.Equal(t, lab.OrderItemID, updated.OrderItemID)
}

func TestService_SeedLabsFromOrder_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SeedLabsFromOrder(ctx, f.order.ID, SeedInput{StartIndex: 1}, testCaller)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Zero(t, first.Skipped)
	require.Len(t, first.Labs, 2)
	assert.Equal(t, fmt.Sprintf("LAB-%d-1", f.order.OrderID), first.Labs[0].LabSendNumber)
	assert.Equal(t, fmt.Sprintf("LAB-%d-2", f.order.OrderID), first.Labs[1].LabSendNumber)

	// Re-running covers nothing new; every item is skipped.
	again, err := f.svc.SeedLabsFromOrder(ctx, f.order.ID, SeedInput{StartIndex: 1}, testCaller)
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 2, again.Skipped)
	require.Len(t, again.Labs, 2)

	// Freeing one slot makes the next run fill exactly that one, with the
	// number derived from the item's position.
	require.NoError(t, f.svc.SoftDelete(ctx, first.Labs[0].ID, testCaller))
	refilled, err := f.svc.SeedLabsFromOrder(ctx, f.order.ID, SeedInput{Prefix: "RETEST-", StartIndex: 9}, testCaller)
	require.NoError(t, err)
	assert.Equal(t, 1, refilled.Created)
	assert.Equal(t, 1, refilled.Skipped)
	require.Len(t, refilled.Labs, 2)
	assert.Equal(t, first.Labs[0].OrderItemID, refilled.Labs[0].OrderItemID)
	assert.Equal(t, fmt.Sprintf("RETEST-%d-9", f.order.OrderID), refilled.Labs[0].LabSendNumber)
}

func TestService_SeedLabsFromOrder_OverrideExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SeedLabsFromOrder(ctx, f.order.ID, SeedInput{StartIndex: 1}, testCaller)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	// Overriding renumbers the existing rows in place: same ids, new fields,
	// no extra rows.
	redo, err := f.svc.SeedLabsFromOrder(ctx, f.order.ID, SeedInput{Prefix: "RESEND-", StartIndex: 5, OverrideExisting: true}, testCaller)
	require.NoError(t, err)
	assert.Equal(t, 2, redo.Created)
	assert.Zero(t, redo.Skipped)
	require.Len(t, redo.Labs, 2)
	assert.Equal(t, first.Labs[0].ID, redo.Labs[0].ID)
	assert.Equal(t, first.Labs[1].ID, redo.Labs[1].ID)
	assert.Equal(t, fmt.Sprintf("RESEND-%d-5", f.order.OrderID), redo.Labs[0].LabSendNumber)
	assert.Equal(t, fmt.Sprintf("RESEND-%d-6", f.order.OrderID), redo.Labs[1].LabSendNumber)

	all, err := f.svc.ListByOrder(ctx, f.order.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
