package milloutput

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
	service "github.com/millflow/millflow/internal/service/milloutput"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/milloutput")

// maxListLimit caps the page size on every list endpoint.
const maxListLimit = 100

// Handler exposes mill output endpoints over HTTP.
type Handler struct {
	svc      *service.Service
	recorder *audit.Recorder
}

// NewHandler constructs a mill output Handler.
func NewHandler(svc *service.Service, recorder *audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	orders := e.Group("/orders/:orderId/mill-outputs", auth.RequireIdentity())
	orders.POST("", h.create)
	orders.GET("", h.listByOrder)

	rows := e.Group("/mill-outputs", auth.RequireIdentity())
	rows.GET("/:id", h.getByID)
	rows.PUT("/:id", h.update)
	rows.DELETE("/:id", h.remove)
}

type millOutputPayload struct {
	RecdDate    time.Time `json:"recdDate"`
	MillBillNo  string    `json:"millBillNo"`
	FinishedMtr float64   `json:"finishedMtr"`
	MillRate    float64   `json:"millRate"`
	QualityID   *int64    `json:"qualityId"`
}

func (p millOutputPayload) toInput() service.Input {
	return service.Input{
		RecdDate:    p.RecdDate,
		MillBillNo:  p.MillBillNo,
		FinishedMtr: p.FinishedMtr,
		MillRate:    p.MillRate,
		QualityID:   p.QualityID,
	}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload millOutputPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "millOutputs.create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	output, err := h.svc.Create(ctx, orderPK, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromMillOutput(output)).Build()
}

func (h *Handler) listByOrder(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}
	page := queryInt(c, "page", 1)
	limit := queryLimit(c, 20)

	ctx, span := httpTracer.Start(c.Request().Context(), "millOutputs.listByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	outputs, count, err := h.svc.ListByOrder(ctx, orderPK, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromMillOutputs(outputs)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "millOutputs.getByID", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	output, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceMillOutput, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromMillOutput(output)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload millOutputPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "millOutputs.update", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	output, err := h.svc.Update(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromMillOutput(output)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "millOutputs.delete", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
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
