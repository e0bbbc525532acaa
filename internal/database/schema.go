package database

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/millflow/millflow/internal/entity"
)

// schemaModels lists every table in dependency order.
var schemaModels = []any{
	(*entity.Party)(nil),
	(*entity.Mill)(nil),
	(*entity.Quality)(nil),
	(*entity.Process)(nil),
	(*entity.Order)(nil),
	(*entity.OrderItem)(nil),
	(*entity.MillInput)(nil),
	(*entity.AdditionalMeter)(nil),
	(*entity.MillOutput)(nil),
	(*entity.Dispatch)(nil),
	(*entity.Lab)(nil),
	(*entity.AuditLog)(nil),
	(*entity.Counter)(nil),
}

type schemaIndex struct {
	model   any
	name    string
	columns []string
	unique  bool
	where   string
}

// Unique indexes here carry the pipeline invariants: name uniqueness in the
// reference registry, chalan-per-order, PO+style-per-party and the single
// active lab per order item.
var schemaIndexes = []schemaIndex{
	{model: (*entity.Party)(nil), name: "parties_name_uq", columns: []string{"name"}, unique: true},
	{model: (*entity.Mill)(nil), name: "mills_name_uq", columns: []string{"name"}, unique: true},
	{model: (*entity.Quality)(nil), name: "qualities_name_uq", columns: []string{"name"}, unique: true},
	{model: (*entity.Process)(nil), name: "processes_name_uq", columns: []string{"name"}, unique: true},
	{model: (*entity.Order)(nil), name: "orders_order_id_uq", columns: []string{"order_id"}, unique: true},
	{
		model:   (*entity.Order)(nil),
		name:    "orders_party_po_style_uq",
		columns: []string{"party_id", "po_number", "style_no"},
		unique:  true,
		where:   "po_number <> '' AND style_no <> ''",
	},
	{model: (*entity.MillInput)(nil), name: "mill_inputs_order_chalan_uq", columns: []string{"order_pk", "chalan_no"}, unique: true},
	{
		model:   (*entity.Lab)(nil),
		name:    "labs_order_item_active_uq",
		columns: []string{"order_pk", "order_item_id"},
		unique:  true,
		where:   "NOT soft_deleted",
	},
	{model: (*entity.AuditLog)(nil), name: "audit_logs_timestamp_idx", columns: []string{"timestamp"}},
}

// CreateSchema builds every table and index through bun. Postgres deployments
// use the goose migrations instead; this path serves sqlite dev setups and
// tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	for _, idx := range schemaIndexes {
		q := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			IfNotExists().
			Column(idx.columns...)
		if idx.unique {
			q = q.Unique()
		}
		if idx.where != "" {
			q = q.Where(idx.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
