package order

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
)

func newTestRepo(t *testing.T) (*Repository, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), db))
	return NewRepository(&database.Connections{Writer: db, Reader: db}), db
}

func seedParty(t *testing.T, db *bun.DB, name string) *entity.Party {
	t.Helper()
	party := &entity.Party{Name: name, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(party).Exec(context.Background())
	require.NoError(t, err)
	return party
}

func newOrder(partyID, orderID int64) *entity.Order {
	now := time.Now().UTC()
	return &entity.Order{
		OrderID:     orderID,
		Type:        entity.OrderTypeDying,
		ArrivalDate: now,
		Status:      entity.OrderStatusPending,
		PartyID:     partyID,
		Items: []*entity.OrderItem{
			{Quantity: 100, Description: "main lot"},
			{Quantity: 50, Description: "sample lot", ImageURLs: []string{"https://img/1.png"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRepository_NextOrderID_Sequential(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextOrderID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Shree Textiles")

	order := newOrder(party.ID, 1)
	require.NoError(t, repo.Create(ctx, order))
	require.NotZero(t, order.ID)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.OrderID)
	require.NotNil(t, got.Party)
	assert.Equal(t, "Shree Textiles", got.Party.Name)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "main lot", got.Items[0].Description)
	assert.Equal(t, []string{"https://img/1.png"}, got.Items[1].ImageURLs)
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DuplicateOrderID_IsUniqueViolation(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Kiran Fabrics")

	require.NoError(t, repo.Create(ctx, newOrder(party.ID, 7)))
	err := repo.Create(ctx, newOrder(party.ID, 7))
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestRepository_POStyleUnique_PartialIndex(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Kiran Fabrics")

	first := newOrder(party.ID, 1)
	first.PONumber = "PO-1"
	first.StyleNo = "ST-9"
	require.NoError(t, repo.Create(ctx, first))

	dup := newOrder(party.ID, 2)
	dup.PONumber = "PO-1"
	dup.StyleNo = "ST-9"
	err := repo.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	// Blank PO or style keeps the row out of the partial index.
	blankA := newOrder(party.ID, 3)
	blankA.PONumber = "PO-1"
	require.NoError(t, repo.Create(ctx, blankA))
	blankB := newOrder(party.ID, 4)
	blankB.PONumber = "PO-1"
	require.NoError(t, repo.Create(ctx, blankB))

	exists, err := repo.POStyleExists(ctx, party.ID, "PO-1", "ST-9", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.POStyleExists(ctx, party.ID, "PO-1", "ST-9", first.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_Update_RewritesItems(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Shree Textiles")

	order := newOrder(party.ID, 1)
	require.NoError(t, repo.Create(ctx, order))

	order.Type = entity.OrderTypePrinting
	order.Items = []*entity.OrderItem{{Quantity: 75, Description: "replacement lot"}}
	order.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, order))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderTypePrinting, got.Type)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "replacement lot", got.Items[0].Description)
}

func TestRepository_Update_NotFound(t *testing.T) {
	repo, db := newTestRepo(t)
	party := seedParty(t, db, "Shree Textiles")

	ghost := newOrder(party.ID, 1)
	ghost.ID = 404
	assert.ErrorIs(t, repo.Update(context.Background(), ghost), ErrNotFound)
}

func TestRepository_Delete_RemovesItems(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Shree Textiles")

	order := newOrder(party.ID, 1)
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.Delete(ctx, order.ID))

	_, err := repo.GetByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := db.NewSelect().Model((*entity.OrderItem)(nil)).Where("order_pk = ?", order.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, repo.Delete(ctx, order.ID), ErrNotFound)
}

func TestRepository_List_FiltersAndPages(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	partyA := seedParty(t, db, "Shree Textiles")
	partyB := seedParty(t, db, "Kiran Fabrics")

	for i := int64(1); i <= 5; i++ {
		o := newOrder(partyA.ID, i)
		o.ArrivalDate = time.Date(2026, 3, int(i), 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Create(ctx, o))
	}
	other := newOrder(partyB.ID, 6)
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, repo.UpdateStatus(ctx, other.ID, entity.OrderStatusDelivered))

	orders, count, err := repo.List(ctx, ListFilter{PartyID: partyA.ID, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Len(t, orders, 2)

	orders, count, err = repo.List(ctx, ListFilter{Status: entity.OrderStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, orders, 1)
	assert.Equal(t, other.ID, orders[0].ID)

	_, count, err = repo.List(ctx, ListFilter{
		From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepository_CountByParty(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	party := seedParty(t, db, "Shree Textiles")

	count, err := repo.CountByParty(ctx, party.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.Create(ctx, newOrder(party.ID, 1)))
	count, err = repo.CountByParty(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
