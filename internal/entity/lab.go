package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Lab statuses. Sent may move to received or cancelled; both are terminal.
const (
	LabStatusSent      = "sent"
	LabStatusReceived  = "received"
	LabStatusCancelled = "cancelled"
)

// LabSendData is the free-form payload attached to a lab record.
type LabSendData struct {
	Color          string     `json:"color"`
	Shade          string     `json:"shade"`
	Notes          string     `json:"notes"`
	SampleNumber   string     `json:"sampleNumber"`
	ImageURL       string     `json:"imageUrl"`
	ApprovalDate   *time.Time `json:"approvalDate,omitempty"`
	Specifications string     `json:"specifications"`
}

// Lab tracks sample testing for one order item. Records are never hard
// deleted; DELETE flips SoftDeleted. At most one non-soft-deleted Lab may
// exist per (order, order item) pair.
type Lab struct {
	bun.BaseModel `bun:"table:labs,alias:l"`

	ID            int64       `bun:",pk,autoincrement"`
	OrderPK       int64       `bun:"order_pk"`
	Order         *Order      `bun:"rel:belongs-to,join:order_pk=id"`
	OrderItemID   int64       `bun:"order_item_id"`
	LabSendDate   time.Time   `bun:"lab_send_date,nullzero"`
	LabSendNumber string      `bun:"lab_send_number"`
	SendData      LabSendData `bun:"send_data,type:jsonb"`
	Status        string      `bun:"status"`
	Remarks       string      `bun:"remarks"`
	SoftDeleted   bool        `bun:"soft_deleted"`
	CreatedAt     time.Time   `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time   `bun:"updated_at,nullzero"`
}
