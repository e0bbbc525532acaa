package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order types.
const (
	OrderTypeDying    = "dying"
	OrderTypePrinting = "printing"
)

// Order statuses. The only forward transition is pending -> delivered.
const (
	OrderStatusPending   = "pending"
	OrderStatusDelivered = "delivered"
)

// Order is a textile job moving through the production pipeline. OrderID is
// the human-facing sequential number allocated from the counters table; ID is
// the storage primary key and the value ledgers reference.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID           int64        `bun:",pk,autoincrement"`
	OrderID      int64        `bun:"order_id"`
	Type         string       `bun:"order_type"`
	ArrivalDate  time.Time    `bun:"arrival_date,nullzero"`
	DeliveryDate time.Time    `bun:"delivery_date,nullzero"`
	PONumber     string       `bun:"po_number"`
	StyleNo      string       `bun:"style_no"`
	Status       string       `bun:"status"`
	PartyID      int64        `bun:"party_id"`
	Party        *Party       `bun:"rel:belongs-to,join:party_id=id"`
	Items        []*OrderItem `bun:"rel:has-many,join:id=order_pk"`
	CreatedAt    time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `bun:"updated_at,nullzero"`
}

// OrderItem is one line of an order: a quantity of a quality. Position
// preserves the caller-supplied item order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID          int64    `bun:",pk,autoincrement"`
	OrderPK     int64    `bun:"order_pk"`
	Position    int      `bun:"position"`
	QualityID   *int64   `bun:"quality_id"`
	Quality     *Quality `bun:"rel:belongs-to,join:quality_id=id"`
	Quantity    float64  `bun:"quantity"`
	Description string   `bun:"description"`
	ImageURLs   []string `bun:"image_urls,type:jsonb"`
}
