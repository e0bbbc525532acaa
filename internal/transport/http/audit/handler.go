package audit

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	auditengine "github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/auth"
	"github.com/millflow/millflow/internal/dto"
	"github.com/millflow/millflow/internal/presentation/http/response"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/audit")

// Handler exposes the audit trail over HTTP. Reads go straight to the store;
// only the retention sweep mutates it.
type Handler struct {
	store *auditengine.Store
}

// NewHandler constructs an audit Handler.
func NewHandler(store *auditengine.Store) *Handler {
	return &Handler{store: store}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/audit-logs", auth.RequireIdentity())
	g.GET("", h.search)
	g.POST("/cleanup", h.cleanup)
}

func (h *Handler) search(c echo.Context) error {
	b := response.New(c)

	q := auditengine.Query{
		UserID:        c.QueryParam("userId"),
		Username:      c.QueryParam("username"),
		Action:        c.QueryParam("action"),
		ExcludeAction: c.QueryParam("excludeAction"),
		Resource:      c.QueryParam("resource"),
		ResourceID:    c.QueryParam("resourceId"),
		Severity:      c.QueryParam("severity"),
		SortBy:        c.QueryParam("sortBy"),
		SortOrder:     c.QueryParam("sortOrder"),
		Cursor:        c.QueryParam("cursor"),
	}
	if raw := c.QueryParam("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid success filter")).Build()
		}
		q.Success = &success
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return b.WithError(errorbank.BadRequest("invalid limit")).Build()
		}
		q.Limit = limit
	}
	if start, ok := queryTime(c, "start"); ok {
		q.Start = start
	}
	if end, ok := queryTime(c, "end"); ok {
		q.End = end
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auditLogs.search")
	defer span.End()

	page, err := h.store.Search(ctx, q)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromAuditLogs(page.Entries)).
		WithMeta("totalCount", page.TotalCount).
		WithMeta("hasMore", page.HasMore).
		WithMeta("nextCursor", page.NextCursor).
		Build()
}

func (h *Handler) cleanup(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		DaysToKeep int `json:"daysToKeep"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.DaysToKeep == 0 {
		payload.DaysToKeep = auditengine.DefaultRetentionDays
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auditLogs.cleanup")
	defer span.End()

	removed, err := h.store.Cleanup(ctx, payload.DaysToKeep)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"removed": removed}).Build()
}

func queryTime(c echo.Context, name string) (time.Time, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
