package dispatch

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
)

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/dispatch")

// ErrNotFound is returned when a dispatch is missing.
var ErrNotFound = errors.New("dispatch not found")

// Repository encapsulates read/write access for dispatch rows.
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

// Create persists a new shipment row.
func (r *Repository) Create(ctx context.Context, d *entity.Dispatch) error {
	if d == nil {
		return errors.New("nil dispatch")
	}
	ctx, span := repoTracer.Start(ctx, "DispatchRepository.Create", trace.WithAttributes(attribute.String("dispatch.bill_no", d.BillNo)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(d).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a row with quality resolved.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Dispatch, error) {
	ctx, span := repoTracer.Start(ctx, "DispatchRepository.GetByID", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	d := new(entity.Dispatch)
	err := r.reader.NewSelect().Model(d).
		Relation("Quality").
		Where("d.id = ?", id).
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
	return d, nil
}

// ListByOrder returns a page of rows for one order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.Dispatch, int, error) {
	ctx, span := repoTracer.Start(ctx, "DispatchRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var dispatches []*entity.Dispatch
	count, err := r.reader.NewSelect().Model(&dispatches).
		Relation("Quality").
		Where("d.order_pk = ?", orderPK).
		OrderExpr("d.dispatch_date DESC, d.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return dispatches, count, nil
}

// Update replaces the row's fields, including the recomputed total value.
func (r *Repository) Update(ctx context.Context, d *entity.Dispatch) error {
	if d == nil {
		return errors.New("nil dispatch")
	}
	ctx, span := repoTracer.Start(ctx, "DispatchRepository.Update", trace.WithAttributes(attribute.Int64("dispatch.id", d.ID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model(d).
		Column("dispatch_date", "bill_no", "finish_mtr", "sale_rate", "total_value", "quality_id", "updated_at").
		WherePK().
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

// Delete removes the row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "DispatchRepository.Delete", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Dispatch)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
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
