package lab

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
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/internal/presentation/http/response"
	service "github.com/millflow/millflow/internal/service/lab"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/lab")

// Handler exposes lab endpoints over HTTP.
type Handler struct {
	svc      *service.Service
	recorder *audit.Recorder
}

// NewHandler constructs a lab Handler.
func NewHandler(svc *service.Service, recorder *audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	orders := e.Group("/orders/:orderId/labs", auth.RequireIdentity())
	orders.POST("", h.create)
	orders.GET("", h.listByOrder)
	orders.POST("/seed", h.seed)

	rows := e.Group("/labs", auth.RequireIdentity())
	rows.GET("/:id", h.getByID)
	rows.PUT("/:id", h.update)
	rows.PATCH("/:id/status", h.updateStatus)
	rows.DELETE("/:id", h.remove)
}

type labPayload struct {
	OrderItemID   int64              `json:"orderItemId"`
	LabSendDate   time.Time          `json:"labSendDate"`
	LabSendNumber string             `json:"labSendNumber"`
	SendData      entity.LabSendData `json:"sendData"`
	Remarks       string             `json:"remarks"`
}

func (p labPayload) toInput() service.Input {
	return service.Input{
		OrderItemID:   p.OrderItemID,
		LabSendDate:   p.LabSendDate,
		LabSendNumber: p.LabSendNumber,
		SendData:      p.SendData,
		Remarks:       p.Remarks,
	}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload labPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	lab, err := h.svc.Create(ctx, orderPK, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromLab(lab)).Build()
}

func (h *Handler) listByOrder(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}
	includeDeleted := c.QueryParam("includeDeleted") == "true"

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.listByOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	labs, err := h.svc.ListByOrder(ctx, orderPK, includeDeleted)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLabs(labs)).Build()
}

func (h *Handler) seed(c echo.Context) error {
	b := response.New(c)

	orderPK, err := paramID(c, "orderId")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Prefix           string    `json:"prefix"`
		StartIndex       int       `json:"startIndex"`
		LabSendDate      time.Time `json:"labSendDate"`
		OverrideExisting bool      `json:"overrideExisting"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.seed", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	result, err := h.svc.SeedLabsFromOrder(ctx, orderPK, service.SeedInput{
		Prefix:           payload.Prefix,
		StartIndex:       payload.StartIndex,
		LabSendDate:      payload.LabSendDate,
		OverrideExisting: payload.OverrideExisting,
	}, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).
		WithData(dto.FromLabs(result.Labs)).
		WithMeta("createdCount", result.Created).
		WithMeta("skippedCount", result.Skipped).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.getByID", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	lab, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceLab, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromLab(lab)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload labPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.update", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	lab, err := h.svc.Update(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLab(lab)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.updateStatus", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	lab, err := h.svc.UpdateStatus(ctx, id, payload.Status, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLab(lab)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := paramID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "labs.delete", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	if err := h.svc.SoftDelete(ctx, id, auth.CallerFrom(c)); err != nil {
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
