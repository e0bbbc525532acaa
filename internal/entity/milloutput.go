package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// MillOutput is one receipt of finished material from a mill against an
// order. A mill may raise multiple bills for one order, so MillBillNo
// carries no uniqueness constraint.
type MillOutput struct {
	bun.BaseModel `bun:"table:mill_outputs,alias:mo"`

	ID          int64     `bun:",pk,autoincrement"`
	OrderID     int64     `bun:"order_id"`
	OrderPK     int64     `bun:"order_pk"`
	Order       *Order    `bun:"rel:belongs-to,join:order_pk=id"`
	RecdDate    time.Time `bun:"recd_date,nullzero"`
	MillBillNo  string    `bun:"mill_bill_no"`
	FinishedMtr float64   `bun:"finished_mtr"`
	MillRate    float64   `bun:"mill_rate"`
	QualityID   *int64    `bun:"quality_id"`
	Quality     *Quality  `bun:"rel:belongs-to,join:quality_id=id"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero"`
}
