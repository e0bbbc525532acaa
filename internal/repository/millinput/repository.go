package millinput

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

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/millinput")

// ErrNotFound is returned when a mill input is missing.
var ErrNotFound = errors.New("mill input not found")

// Repository encapsulates read/write access for mill input rows and their
// additional meter entries.
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

// Create persists a new ledger row with its meter entries. Every issuance is
// a new row; the (order_pk, chalan_no) unique index rejects duplicates.
func (r *Repository) Create(ctx context.Context, input *entity.MillInput) error {
	if input == nil {
		return errors.New("nil mill input")
	}
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.Create", trace.WithAttributes(attribute.String("mill_input.chalan_no", input.ChalanNo)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(input).Exec(ctx); err != nil {
			return err
		}
		return insertMeters(ctx, tx, input)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a row with mill, quality and meter entries resolved.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.MillInput, error) {
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.GetByID", trace.WithAttributes(attribute.Int64("mill_input.id", id)))
	defer span.End()

	input := new(entity.MillInput)
	err := r.reader.NewSelect().Model(input).
		Relation("Mill").
		Relation("Quality").
		Relation("AdditionalMeters", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("position ASC")
		}).
		Relation("AdditionalMeters.Quality").
		Where("mi.id = ?", id).
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
	return input, nil
}

// ListByOrder returns a page of rows for one order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.MillInput, int, error) {
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var inputs []*entity.MillInput
	count, err := r.reader.NewSelect().Model(&inputs).
		Relation("Mill").
		Relation("Quality").
		Relation("AdditionalMeters", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("position ASC")
		}).
		Where("mi.order_pk = ?", orderPK).
		OrderExpr("mi.mill_date DESC, mi.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return inputs, count, nil
}

// Update replaces the row's fields and rewrites its meter entries.
func (r *Repository) Update(ctx context.Context, input *entity.MillInput) error {
	if input == nil {
		return errors.New("nil mill input")
	}
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.Update", trace.WithAttributes(attribute.Int64("mill_input.id", input.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(input).
			Column("mill_id", "mill_date", "chalan_no", "greigh_mtr", "pcs", "quality_id", "process_name", "notes", "updated_at").
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
		if _, err := tx.NewDelete().Model((*entity.AdditionalMeter)(nil)).Where("mill_input_id = ?", input.ID).Exec(ctx); err != nil {
			return err
		}
		return insertMeters(ctx, tx, input)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Delete removes the row and its meter entries.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.Delete", trace.WithAttributes(attribute.Int64("mill_input.id", id)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.AdditionalMeter)(nil)).Where("mill_input_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.MillInput)(nil)).Where("id = ?", id).Exec(ctx)
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

// DeleteByMill removes every row issued to a mill; mill deletion cascades.
func (r *Repository) DeleteByMill(ctx context.Context, millID int64) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "MillInputRepository.DeleteByMill", trace.WithAttributes(attribute.Int64("mill.id", millID)))
	defer span.End()

	var deleted int64
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.AdditionalMeter)(nil)).
			Where("mill_input_id IN (SELECT id FROM mill_inputs WHERE mill_id = ?)", millID).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.MillInput)(nil)).Where("mill_id = ?", millID).Exec(ctx)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// ChalanExists reports whether the order already carries this chalan number,
// optionally excluding the row being updated.
func (r *Repository) ChalanExists(ctx context.Context, orderPK int64, chalanNo string, excludeID int64) (bool, error) {
	sel := r.reader.NewSelect().Model((*entity.MillInput)(nil)).
		Where("order_pk = ?", orderPK).
		Where("chalan_no = ?", chalanNo)
	if excludeID > 0 {
		sel = sel.Where("id <> ?", excludeID)
	}
	return sel.Exists(ctx)
}

func insertMeters(ctx context.Context, tx bun.Tx, input *entity.MillInput) error {
	if len(input.AdditionalMeters) == 0 {
		return nil
	}
	for i, meter := range input.AdditionalMeters {
		meter.ID = 0
		meter.MillInputID = input.ID
		meter.Position = i
	}
	_, err := tx.NewInsert().Model(&input.AdditionalMeters).Exec(ctx)
	return err
}
