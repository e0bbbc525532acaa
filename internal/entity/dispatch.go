package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Dispatch is one shipment of finished material to the customer. TotalValue
// is derived as FinishMtr * SaleRate on every write; client-supplied values
// are discarded.
type Dispatch struct {
	bun.BaseModel `bun:"table:dispatches,alias:d"`

	ID           int64     `bun:",pk,autoincrement"`
	OrderID      int64     `bun:"order_id"`
	OrderPK      int64     `bun:"order_pk"`
	Order        *Order    `bun:"rel:belongs-to,join:order_pk=id"`
	DispatchDate time.Time `bun:"dispatch_date,nullzero"`
	BillNo       string    `bun:"bill_no"`
	FinishMtr    float64   `bun:"finish_mtr"`
	SaleRate     float64   `bun:"sale_rate"`
	TotalValue   float64   `bun:"total_value"`
	QualityID    *int64    `bun:"quality_id"`
	Quality      *Quality  `bun:"rel:belongs-to,join:quality_id=id"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero"`
}
