package dto

import (
	"time"

	"github.com/millflow/millflow/internal/entity"
)

// AuditLogResponse represents one audit event.
type AuditLogResponse struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"userId,omitempty"`
	Username   string         `json:"username,omitempty"`
	UserRole   string         `json:"userRole,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Success    bool           `json:"success"`
	Severity   string         `json:"severity"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
}

// FromAuditLog maps an audit log entity.
func FromAuditLog(l *entity.AuditLog) *AuditLogResponse {
	if l == nil {
		return nil
	}
	return &AuditLogResponse{
		ID:         l.ID,
		Timestamp:  l.Timestamp,
		UserID:     l.UserID,
		Username:   l.Username,
		UserRole:   l.UserRole,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		Details:    l.Details,
		Success:    l.Success,
		Severity:   l.Severity,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
	}
}

// FromAuditLogs maps a slice of audit logs.
func FromAuditLogs(logs []*entity.AuditLog) []*AuditLogResponse {
	out := make([]*AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, FromAuditLog(l))
	}
	return out
}
