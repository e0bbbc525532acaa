package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// MillInput is one physical issuance of greigh (raw) material to a mill
// against an order. ChalanNo is the mill's consignment slip number and is
// unique within the scope of one order, never globally.
type MillInput struct {
	bun.BaseModel `bun:"table:mill_inputs,alias:mi"`

	ID               int64              `bun:",pk,autoincrement"`
	OrderID          int64              `bun:"order_id"`
	OrderPK          int64              `bun:"order_pk"`
	Order            *Order             `bun:"rel:belongs-to,join:order_pk=id"`
	MillID           int64              `bun:"mill_id"`
	Mill             *Mill              `bun:"rel:belongs-to,join:mill_id=id"`
	MillDate         time.Time          `bun:"mill_date,nullzero"`
	ChalanNo         string             `bun:"chalan_no"`
	GreighMtr        float64            `bun:"greigh_mtr"`
	Pcs              int                `bun:"pcs"`
	QualityID        *int64             `bun:"quality_id"`
	Quality          *Quality           `bun:"rel:belongs-to,join:quality_id=id"`
	ProcessName      string             `bun:"process_name"`
	Notes            string             `bun:"notes"`
	AdditionalMeters []*AdditionalMeter `bun:"rel:has-many,join:id=mill_input_id"`
	CreatedAt        time.Time          `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time          `bun:"updated_at,nullzero"`
}

// AdditionalMeter is a split consignment issued under the same chalan.
type AdditionalMeter struct {
	bun.BaseModel `bun:"table:mill_input_meters,alias:mim"`

	ID          int64    `bun:",pk,autoincrement"`
	MillInputID int64    `bun:"mill_input_id"`
	Position    int      `bun:"position"`
	GreighMtr   float64  `bun:"greigh_mtr"`
	Pcs         int      `bun:"pcs"`
	QualityID   *int64   `bun:"quality_id"`
	Quality     *Quality `bun:"rel:belongs-to,join:quality_id=id"`
	ProcessName string   `bun:"process_name"`
	Notes       string   `bun:"notes"`
}
