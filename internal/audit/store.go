package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/pkg/errorbank"
)

var storeTracer = otel.Tracer("github.com/millflow/millflow/audit")

// loadAllThreshold switches Search into full-scan mode: a limit at or above
// it, with no cursor, returns the entire filtered set in one page.
const loadAllThreshold = 1000

// DefaultRetentionDays is the retention horizon applied when a cleanup
// request does not name one.
const DefaultRetentionDays = 90

// sortColumns whitelists the sortable fields.
var sortColumns = map[string]string{
	"timestamp": "timestamp",
	"action":    "action",
	"resource":  "resource",
	"username":  "username",
	"severity":  "severity",
}

// Store persists and queries immutable audit entries. Nothing outside the
// retention sweep deletes rows, and no path updates them.
type Store struct {
	writer *bun.DB
	reader *bun.DB
}

// NewStore wires a store backed by the configured database connections.
func NewStore(conns *database.Connections) *Store {
	return &Store{writer: conns.Writer, reader: conns.Reader}
}

// Insert appends one entry.
func (s *Store) Insert(ctx context.Context, entry *entity.AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.writer.NewInsert().Model(entry).Exec(ctx)
	return err
}

// Query filters and paginates the audit trail.
type Query struct {
	UserID        string
	Username      string // substring, case-insensitive
	Action        string
	ExcludeAction string
	Resource      string
	ResourceID    string
	Success       *bool
	Severity      string
	Start         time.Time
	End           time.Time
	SortBy        string
	SortOrder     string
	Limit         int
	Cursor        string
}

// Page is one slice of the filtered audit trail. TotalCount is -1 on
// cursor-following pages, where recomputing the count would be wasted work.
type Page struct {
	Entries    []*entity.AuditLog
	TotalCount int64
	HasMore    bool
	NextCursor string
}

// Search runs the dual-mode query: full scan for bulk consumers
// (limit >= 1000, no cursor) and keyset pagination for everyone else. The
// cursor carries the sort value plus the entry id so pages stay stable when
// sort values collide.
func (s *Store) Search(ctx context.Context, q Query) (*Page, error) {
	ctx, span := storeTracer.Start(ctx, "AuditStore.Search", trace.WithAttributes(
		attribute.String("audit.resource", q.Resource),
		attribute.Int("audit.limit", q.Limit),
	))
	defer span.End()

	col, ok := sortColumns[q.SortBy]
	if q.SortBy == "" {
		col = "timestamp"
	} else if !ok {
		return nil, errorbank.BadRequest(fmt.Sprintf("unsupported sort field: %s", q.SortBy))
	}

	desc := true
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return nil, errorbank.BadRequest(fmt.Sprintf("unsupported sort order: %s", q.SortOrder))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	ordering := fmt.Sprintf("%s ASC, id ASC", col)
	if desc {
		ordering = fmt.Sprintf("%s DESC, id DESC", col)
	}

	var entries []*entity.AuditLog

	if limit >= loadAllThreshold && q.Cursor == "" {
		sel := s.filtered(s.reader.NewSelect().Model(&entries), q).OrderExpr(ordering)
		if err := sel.Scan(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "full scan failed")
			return nil, err
		}
		return &Page{Entries: entries, TotalCount: int64(len(entries)), HasMore: false}, nil
	}

	sel := s.filtered(s.reader.NewSelect().Model(&entries), q).OrderExpr(ordering).Limit(limit + 1)

	if q.Cursor != "" {
		value, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, errorbank.BadRequest("malformed cursor", errorbank.WithCause(err))
		}
		bound, err := cursorBound(col, value)
		if err != nil {
			return nil, errorbank.BadRequest("malformed cursor", errorbank.WithCause(err))
		}
		if desc {
			sel = sel.Where(fmt.Sprintf("(%s < ?) OR (%s = ? AND id < ?)", col, col), bound, bound, id)
		} else {
			sel = sel.Where(fmt.Sprintf("(%s > ?) OR (%s = ? AND id > ?)", col, col), bound, bound, id)
		}
	}

	if err := sel.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page scan failed")
		return nil, err
	}

	page := &Page{TotalCount: -1}
	if len(entries) > limit {
		page.HasMore = true
		entries = entries[:limit]
	}
	page.Entries = entries
	if page.HasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		page.NextCursor = encodeCursor(sortValue(last, col), last.ID)
	}

	// An expensive count is worth computing once, on the first page only.
	if q.Cursor == "" {
		count, err := s.filtered(s.reader.NewSelect().Model((*entity.AuditLog)(nil)), q).Count(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "count failed")
			return nil, err
		}
		page.TotalCount = int64(count)
	}

	return page, nil
}

// Cleanup deletes every entry older than daysToKeep days and returns the
// count. This is the only destructive path over the audit trail.
func (s *Store) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 1 || daysToKeep > 365 {
		return 0, errorbank.BadRequest(fmt.Sprintf("daysToKeep must be between 1 and 365, got %d", daysToKeep))
	}

	ctx, span := storeTracer.Start(ctx, "AuditStore.Cleanup", trace.WithAttributes(attribute.Int("audit.days_to_keep", daysToKeep)))
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)
	res, err := s.writer.NewDelete().
		Model((*entity.AuditLog)(nil)).
		Where("timestamp < ?", cutoff).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) filtered(sel *bun.SelectQuery, q Query) *bun.SelectQuery {
	if q.UserID != "" {
		sel = sel.Where("user_id = ?", q.UserID)
	}
	if q.Username != "" {
		sel = sel.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(q.Username)+"%")
	}
	if q.Action != "" {
		sel = sel.Where("action = ?", q.Action)
	}
	if q.ExcludeAction != "" {
		sel = sel.Where("action <> ?", q.ExcludeAction)
	}
	if q.Resource != "" {
		sel = sel.Where("resource = ?", q.Resource)
	}
	if q.ResourceID != "" {
		sel = sel.Where("resource_id = ?", q.ResourceID)
	}
	if q.Success != nil {
		sel = sel.Where("success = ?", *q.Success)
	}
	if q.Severity != "" {
		sel = sel.Where("severity = ?", q.Severity)
	}
	if !q.Start.IsZero() {
		sel = sel.Where("timestamp >= ?", q.Start)
	}
	if !q.End.IsZero() {
		sel = sel.Where("timestamp <= ?", q.End)
	}
	return sel
}

func sortValue(entry *entity.AuditLog, col string) string {
	switch col {
	case "action":
		return entry.Action
	case "resource":
		return entry.Resource
	case "username":
		return entry.Username
	case "severity":
		return entry.Severity
	default:
		return entry.Timestamp.UTC().Format(time.RFC3339Nano)
	}
}

// cursorBound converts the encoded sort value back to a bindable value.
// Timestamps must round-trip as time.Time so each driver formats them the
// same way it stored them.
func cursorBound(col, value string) (any, error) {
	if col != "timestamp" {
		return value, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func encodeCursor(value string, id int64) string {
	raw := value + "|" + strconv.FormatInt(id, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (string, int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", 0, err
	}
	idx := strings.LastIndex(string(raw), "|")
	if idx < 0 {
		return "", 0, fmt.Errorf("cursor missing separator")
	}
	id, err := strconv.ParseInt(string(raw)[idx+1:], 10, 64)
	if err != nil {
		return "", 0, err
	}
	return string(raw)[:idx], id, nil
}
