package order

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
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	service "github.com/millflow/millflow/internal/service/order"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/order")

// maxListLimit caps the page size on every list endpoint.
const maxListLimit = 100

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc      *service.Service
	recorder *audit.Recorder
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service, recorder *audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders", auth.RequireIdentity())
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.PATCH("/:id/status", h.updateStatus)
	g.DELETE("/:id", h.remove)
}

type itemPayload struct {
	QualityID   *int64   `json:"qualityId"`
	Quantity    float64  `json:"quantity"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
}

type orderPayload struct {
	Type         string        `json:"type"`
	ArrivalDate  time.Time     `json:"arrivalDate"`
	DeliveryDate time.Time     `json:"deliveryDate"`
	PONumber     string        `json:"poNumber"`
	StyleNo      string        `json:"styleNo"`
	PartyID      int64         `json:"partyId"`
	Items        []itemPayload `json:"items"`
}

func (p orderPayload) toInput() service.Input {
	items := make([]service.ItemInput, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, service.ItemInput{
			QualityID:   item.QualityID,
			Quantity:    item.Quantity,
			Description: item.Description,
			ImageURLs:   item.ImageURLs,
		})
	}
	return service.Input{
		Type:         p.Type,
		ArrivalDate:  p.ArrivalDate,
		DeliveryDate: p.DeliveryDate,
		PONumber:     p.PONumber,
		StyleNo:      p.StyleNo,
		PartyID:      p.PartyID,
		Items:        items,
	}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	order, err := h.svc.Create(ctx, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	filter := orderrepo.ListFilter{
		Status: c.QueryParam("status"),
		Page:   queryInt(c, "page", 1),
		Limit:  queryLimit(c, 20),
	}
	if partyID := queryInt64(c, "partyId"); partyID > 0 {
		filter.PartyID = partyID
	}
	if from, ok := queryTime(c, "from"); ok {
		filter.From = from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = to
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, count, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(orders)).
		WithMeta("pagination", dto.NewPagination(filter.Page, filter.Limit, count)).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceOrder, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Update(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.UpdateStatus(ctx, id, payload.Status, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id, auth.CallerFrom(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id")
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

func queryInt64(c echo.Context, name string) int64 {
	v, err := strconv.ParseInt(c.QueryParam(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
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
