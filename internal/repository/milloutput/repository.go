package milloutput

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

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/milloutput")

// ErrNotFound is returned when a mill output is missing.
var ErrNotFound = errors.New("mill output not found")

// Repository encapsulates read/write access for mill output rows.
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

// Create persists a new receipt row.
func (r *Repository) Create(ctx context.Context, output *entity.MillOutput) error {
	if output == nil {
		return errors.New("nil mill output")
	}
	ctx, span := repoTracer.Start(ctx, "MillOutputRepository.Create", trace.WithAttributes(attribute.String("mill_output.bill_no", output.MillBillNo)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(output).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a row with quality resolved.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.MillOutput, error) {
	ctx, span := repoTracer.Start(ctx, "MillOutputRepository.GetByID", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	output := new(entity.MillOutput)
	err := r.reader.NewSelect().Model(output).
		Relation("Quality").
		Where("mo.id = ?", id).
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
	return output, nil
}

// ListByOrder returns a page of rows for one order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.MillOutput, int, error) {
	ctx, span := repoTracer.Start(ctx, "MillOutputRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var outputs []*entity.MillOutput
	count, err := r.reader.NewSelect().Model(&outputs).
		Relation("Quality").
		Where("mo.order_pk = ?", orderPK).
		OrderExpr("mo.recd_date DESC, mo.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return outputs, count, nil
}

// Update replaces the row's fields.
func (r *Repository) Update(ctx context.Context, output *entity.MillOutput) error {
	if output == nil {
		return errors.New("nil mill output")
	}
	ctx, span := repoTracer.Start(ctx, "MillOutputRepository.Update", trace.WithAttributes(attribute.Int64("mill_output.id", output.ID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model(output).
		Column("recd_date", "mill_bill_no", "finished_mtr", "mill_rate", "quality_id", "updated_at").
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
	ctx, span := repoTracer.Start(ctx, "MillOutputRepository.Delete", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.MillOutput)(nil)).Where("id = ?", id).Exec(ctx)
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
