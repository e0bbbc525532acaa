package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
)

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates read/write access for orders and their items.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// NextOrderID increments and returns the human-facing order sequence. The
// counter row is created lazily; the unique index on orders.order_id still
// backstops any counter race.
func (r *Repository) NextOrderID(ctx context.Context) (int64, error) {
	var value int64
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		counter := &entity.Counter{Name: entity.CounterOrderID}
		if _, err := tx.NewInsert().Model(counter).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*entity.Counter)(nil)).
			Set("value = value + 1").
			Where("name = ?", entity.CounterOrderID).
			Returning("value").
			Exec(ctx, &value)
		return err
	})
	return value, err
}

// Create persists a new order with its items in one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int64("order.order_id", order.OrderID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		return insertItems(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order with party and items using the read replica.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Party").
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("position ASC")
		}).
		Relation("Items.Quality").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status  string
	PartyID int64
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// List returns a page of orders plus the total filtered count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*entity.Order, int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	var orders []*entity.Order
	sel := r.reader.NewSelect().Model(&orders).
		Relation("Party").
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("position ASC")
		}).
		Relation("Items.Quality")
	if f.Status != "" {
		sel = sel.Where("o.status = ?", f.Status)
	}
	if f.PartyID > 0 {
		sel = sel.Where("o.party_id = ?", f.PartyID)
	}
	if !f.From.IsZero() {
		sel = sel.Where("o.arrival_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		sel = sel.Where("o.arrival_date <= ?", f.To)
	}

	count, err := sel.
		OrderExpr("o.created_at DESC, o.id DESC").
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return orders, count, nil
}

// Update replaces the order's fields and rewrites its items.
func (r *Repository) Update(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(order).
			Column("order_type", "arrival_date", "delivery_date", "po_number", "style_no", "status", "party_id", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_pk = ?", order.ID).Exec(ctx); err != nil {
			return err
		}
		return insertItems(ctx, tx, order)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateStatus flips only the status column.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the order and its items.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_pk = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// POStyleExists reports whether another order of the same party already
// carries this PO number and style number.
func (r *Repository) POStyleExists(ctx context.Context, partyID int64, poNumber, styleNo string, excludeID int64) (bool, error) {
	sel := r.reader.NewSelect().Model((*entity.Order)(nil)).
		Where("party_id = ?", partyID).
		Where("po_number = ?", poNumber).
		Where("style_no = ?", styleNo)
	if excludeID > 0 {
		sel = sel.Where("id <> ?", excludeID)
	}
	return sel.Exists(ctx)
}

// CountByParty returns how many orders reference the party. Used to refuse
// party deletion with an explanatory count.
func (r *Repository) CountByParty(ctx context.Context, partyID int64) (int, error) {
	return r.reader.NewSelect().Model((*entity.Order)(nil)).Where("party_id = ?", partyID).Count(ctx)
}

func insertItems(ctx context.Context, tx bun.Tx, order *entity.Order) error {
	if len(order.Items) == 0 {
		return nil
	}
	for i, item := range order.Items {
		item.ID = 0
		item.OrderPK = order.ID
		item.Position = i
	}
	_, err := tx.NewInsert().Model(&order.Items).Exec(ctx)
	return err
}
