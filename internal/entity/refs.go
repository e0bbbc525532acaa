package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Party is a customer placing orders. Names are unique.
type Party struct {
	bun.BaseModel `bun:"table:parties,alias:p"`

	ID            int64     `bun:",pk,autoincrement"`
	Name          string    `bun:"name"`
	ContactPerson string    `bun:"contact_person"`
	Phone         string    `bun:"phone"`
	Address       string    `bun:"address"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero"`
}

// Mill is a third-party facility that processes raw fabric. Names are unique.
type Mill struct {
	bun.BaseModel `bun:"table:mills,alias:m"`

	ID            int64     `bun:",pk,autoincrement"`
	Name          string    `bun:"name"`
	ContactPerson string    `bun:"contact_person"`
	Phone         string    `bun:"phone"`
	Address       string    `bun:"address"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero"`
}

// Quality is a named fabric specification referenced by order items and
// ledger rows. Names are unique.
type Quality struct {
	bun.BaseModel `bun:"table:qualities,alias:q"`

	ID          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero"`
}

// Process is a named mill process (dying, printing, finishing variants).
type Process struct {
	bun.BaseModel `bun:"table:processes,alias:pc"`

	ID        int64     `bun:",pk,autoincrement"`
	Name      string    `bun:"name"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
