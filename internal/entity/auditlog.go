package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Audit actions.
const (
	AuditActionCreate       = "create"
	AuditActionUpdate       = "update"
	AuditActionDelete       = "delete"
	AuditActionView         = "view"
	AuditActionLogin        = "login"
	AuditActionError        = "error"
	AuditActionStatusChange = "status_change"
)

// Audit severities.
const (
	AuditSeverityInfo    = "info"
	AuditSeverityWarning = "warning"
	AuditSeverityError   = "error"
)

// AuditLog is one immutable audit event. Timestamp, Action, Resource,
// ResourceID and Details are never mutated after insert; rows are removed
// only by the retention sweep.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64          `bun:",pk,autoincrement"`
	Timestamp  time.Time      `bun:"timestamp,notnull"`
	UserID     string         `bun:"user_id"`
	Username   string         `bun:"username"`
	UserRole   string         `bun:"user_role"`
	Action     string         `bun:"action"`
	Resource   string         `bun:"resource"`
	ResourceID string         `bun:"resource_id"`
	Details    map[string]any `bun:"details,type:jsonb"`
	Success    bool           `bun:"success"`
	Severity   string         `bun:"severity"`
	IPAddress  string         `bun:"ip_address"`
	UserAgent  string         `bun:"user_agent"`
}
