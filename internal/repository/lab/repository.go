package lab

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

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/lab")

// ErrNotFound is returned when a lab record is missing.
var ErrNotFound = errors.New("lab not found")

// Repository encapsulates read/write access for lab records. Labs are never
// hard deleted; the soft_deleted flag hides them instead.
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

// Create persists a new lab record. The partial unique index on
// (order_pk, order_item_id) over active rows rejects a second active lab for
// the same item.
func (r *Repository) Create(ctx context.Context, lab *entity.Lab) error {
	if lab == nil {
		return errors.New("nil lab")
	}
	ctx, span := repoTracer.Start(ctx, "LabRepository.Create", trace.WithAttributes(attribute.Int64("lab.order_item_id", lab.OrderItemID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(lab).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a lab record regardless of its soft-deleted state.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Lab, error) {
	ctx, span := repoTracer.Start(ctx, "LabRepository.GetByID", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	lab := new(entity.Lab)
	err := r.reader.NewSelect().Model(lab).Where("l.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return lab, nil
}

// ActiveByOrderItem returns the single non-soft-deleted lab for the pair, or
// ErrNotFound.
func (r *Repository) ActiveByOrderItem(ctx context.Context, orderPK, orderItemID int64) (*entity.Lab, error) {
	lab := new(entity.Lab)
	err := r.reader.NewSelect().Model(lab).
		Where("l.order_pk = ?", orderPK).
		Where("l.order_item_id = ?", orderItemID).
		Where("NOT l.soft_deleted").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return lab, nil
}

// ListByOrder returns the order's labs, active only unless includeDeleted.
func (r *Repository) ListByOrder(ctx context.Context, orderPK int64, includeDeleted bool) ([]*entity.Lab, error) {
	ctx, span := repoTracer.Start(ctx, "LabRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	var labs []*entity.Lab
	sel := r.reader.NewSelect().Model(&labs).
		Where("l.order_pk = ?", orderPK).
		OrderExpr("l.order_item_id ASC, l.id ASC")
	if !includeDeleted {
		sel = sel.Where("NOT l.soft_deleted")
	}
	if err := sel.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return labs, nil
}

// Update replaces the record's mutable fields in place.
func (r *Repository) Update(ctx context.Context, lab *entity.Lab) error {
	if lab == nil {
		return errors.New("nil lab")
	}
	ctx, span := repoTracer.Start(ctx, "LabRepository.Update", trace.WithAttributes(attribute.Int64("lab.id", lab.ID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model(lab).
		Column("lab_send_date", "lab_send_number", "send_data", "status", "remarks", "updated_at").
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

// SoftDelete marks the record deleted, freeing the (order, item) pair for a
// replacement lab.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "LabRepository.SoftDelete", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Lab)(nil)).
		Set("soft_deleted = ?", true).
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
