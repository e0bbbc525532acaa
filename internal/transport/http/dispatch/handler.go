package dispatch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/auth"
	"github.com/millflow/millflow/internal/dto"
	"github.com/millflow/millflow/internal/presentation/http/response"
	service "github.com/millflow/millflow/internal/service/dispatch"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/dispatch")

// maxListLimit caps the page size on every list endpoint.
const maxListLimit = 100

// Handler exposes dispatch endpoints over HTTP.
type Handler struct {
	svc      *service.Service
	recorder *audit.Recorder
}

// NewHandler constructs a dispatch Handler.
func NewHandler(svc *service.Service, recorder *audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	orders := e.Group("/orders/:orderId/dispatches", auth.RequireIdentity())
	orders.POST("", h.create)
	orders.GET("", h.listByOrder)

	rows := e.Group("/dispatches", auth.RequireIdentity())
	rows.GET("/:id", h.getByID)
	rows.PUT("/:id", h.update)
	rows.DELETE("/:id", h.remove)
}

// dispatchPayload deliberately has no totalValue field: the stored figure is
// always recomputed server-side.
type dispatchPayload struct {
	DispatchDate time.Time `json:"dispatchDate"`
	BillNo       string    `json:"billNo"`
	FinishMtr    float64   `json:"finishMtr"`
	SaleRate     float64   `json:"saleRate"`
	QualityID    *int64    `json:"qualityId"`
}

func (p dispatchPayload) toInput() service.Input {
	return service.Input{
		DispatchDate: p.DispatchDate,
		BillNo:       p.BillNo,
		FinishMtr:    p.FinishMtr,
		SaleRate:     p.SaleRate,
		QualityID:    p.QualityID,
	}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dispatchPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatches.create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	d, err := h.svc.Create(ctx, orderPK, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromDispatch(d)).Build()
}

func (h *Handler) listByOrder(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}
	page := queryInt(c, "page", 1)
	limit := queryLimit(c, 20)

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatches.listByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	dispatches, count, err := h.svc.ListByOrder(ctx, orderPK, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromDispatches(dispatches)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatches.getByID", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	d, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceDispatch, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromDispatch(d)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dispatchPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatches.update", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	d, err := h.svc.Update(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromDispatch(d)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatches.delete", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id, auth.CallerFrom(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func paramID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid " + name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func queryLimit(c echo.Context, def int) int {
	limit := queryInt(c, "limit", def)
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
