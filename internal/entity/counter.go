package entity

import "github.com/uptrace/bun"

// CounterOrderID names the sequence backing Order.OrderID.
const CounterOrderID = "order_id"

// Counter is a named monotonic sequence.
type Counter struct {
	bun.BaseModel `bun:"table:counters,alias:c"`

	Name  string `bun:"name,pk"`
	Value int64  `bun:"value"`
}
