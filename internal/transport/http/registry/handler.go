package registry

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/auth"
	"github.com/millflow/millflow/internal/dto"
	"github.com/millflow/millflow/internal/presentation/http/response"
	service "github.com/millflow/millflow/internal/service/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/millflow/millflow/transport/http/registry")

// maxListLimit caps the page size on every list endpoint.
const maxListLimit = 100

// Handler exposes the reference registry over HTTP: parties, mills,
// qualities and processes.
type Handler struct {
	svc      *service.Service
	recorder *audit.Recorder
}

// NewHandler constructs a registry Handler.
func NewHandler(svc *service.Service, recorder *audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	parties := e.Group("/parties", auth.RequireIdentity())
	parties.POST("", h.createParty)
	parties.GET("", h.listParties)
	parties.GET("/:id", h.getParty)
	parties.PUT("/:id", h.updateParty)
	parties.DELETE("/:id", h.deleteParty)

	mills := e.Group("/mills", auth.RequireIdentity())
	mills.POST("", h.createMill)
	mills.GET("", h.listMills)
	mills.GET("/:id", h.getMill)
	mills.PUT("/:id", h.updateMill)
	mills.DELETE("/:id", h.deleteMill)

	qualities := e.Group("/qualities", auth.RequireIdentity())
	qualities.POST("", h.createQuality)
	qualities.GET("", h.listQualities)
	qualities.GET("/:id", h.getQuality)
	qualities.PUT("/:id", h.updateQuality)
	qualities.DELETE("/:id", h.deleteQuality)

	processes := e.Group("/processes", auth.RequireIdentity())
	processes.POST("", h.createProcess)
	processes.GET("", h.listProcesses)
	processes.GET("/:id", h.getProcess)
	processes.PUT("/:id", h.updateProcess)
	processes.DELETE("/:id", h.deleteProcess)
}

type contactPayload struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contactPerson"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

func (p contactPayload) toInput() service.ContactInput {
	return service.ContactInput{
		Name:          p.Name,
		ContactPerson: p.ContactPerson,
		Phone:         p.Phone,
		Address:       p.Address,
	}
}

type qualityPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type processPayload struct {
	Name string `json:"name"`
}

func (h *Handler) createParty(c echo.Context) error {
	b := response.New(c)

	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "parties.create")
	defer span.End()

	party, err := h.svc.CreateParty(ctx, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromParty(party)).Build()
}

func (h *Handler) listParties(c echo.Context) error {
	b := response.New(c)
	page, limit := pageParams(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "parties.list")
	defer span.End()

	parties, count, err := h.svc.ListParties(ctx, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromParties(parties)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getParty(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "parties.getByID")
	defer span.End()

	party, err := h.svc.GetParty(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceParty, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromParty(party)).Build()
}

func (h *Handler) updateParty(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "parties.update")
	defer span.End()

	party, err := h.svc.UpdateParty(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromParty(party)).Build()
}

func (h *Handler) deleteParty(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "parties.delete")
	defer span.End()

	if err := h.svc.DeleteParty(ctx, id, auth.CallerFrom(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) createMill(c echo.Context) error {
	b := response.New(c)

	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "mills.create")
	defer span.End()

	mill, err := h.svc.CreateMill(ctx, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromMill(mill)).Build()
}

func (h *Handler) listMills(c echo.Context) error {
	b := response.New(c)
	page, limit := pageParams(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "mills.list")
	defer span.End()

	mills, count, err := h.svc.ListMills(ctx, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromMills(mills)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getMill(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "mills.getByID")
	defer span.End()

	mill, err := h.svc.GetMill(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceMill, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromMill(mill)).Build()
}

func (h *Handler) updateMill(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "mills.update")
	defer span.End()

	mill, err := h.svc.UpdateMill(ctx, id, payload.toInput(), auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromMill(mill)).Build()
}

func (h *Handler) deleteMill(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "mills.delete")
	defer span.End()

	if err := h.svc.DeleteMill(ctx, id, auth.CallerFrom(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) createQuality(c echo.Context) error {
	b := response.New(c)

	var payload qualityPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "qualities.create")
	defer span.End()

	quality, err := h.svc.CreateQuality(ctx, service.QualityInput{Name: payload.Name, Description: payload.Description}, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromQuality(quality)).Build()
}

func (h *Handler) listQualities(c echo.Context) error {
	b := response.New(c)
	page, limit := pageParams(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "qualities.list")
	defer span.End()

	qualities, count, err := h.svc.ListQualities(ctx, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromQualities(qualities)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getQuality(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "qualities.getByID")
	defer span.End()

	quality, err := h.svc.GetQuality(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceQuality, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromQuality(quality)).Build()
}

func (h *Handler) updateQuality(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload qualityPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "qualities.update")
	defer span.End()

	quality, err := h.svc.UpdateQuality(ctx, id, service.QualityInput{Name: payload.Name, Description: payload.Description}, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromQuality(quality)).Build()
}

func (h *Handler) deleteQuality(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "qualities.delete")
	defer span.End()

	if err := h.svc.DeleteQuality(ctx, id, auth.CallerFrom(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) createProcess(c echo.Context) error {
	b := response.New(c)

	var payload processPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "processes.create")
	defer span.End()

	process, err := h.svc.CreateProcess(ctx, service.ProcessInput{Name: payload.Name}, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromProcess(process)).Build()
}

func (h *Handler) listProcesses(c echo.Context) error {
	b := response.New(c)
	page, limit := pageParams(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "processes.list")
	defer span.End()

	processes, count, err := h.svc.ListProcesses(ctx, page, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromProcesses(processes)).
		WithMeta("pagination", dto.NewPagination(page, limit, count)).
		Build()
}

func (h *Handler) getProcess(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "processes.getByID")
	defer span.End()

	process, err := h.svc.GetProcess(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.recorder.View(audit.ResourceProcess, c.Param("id"), auth.CallerFrom(c))
	return b.WithData(dto.FromProcess(process)).Build()
}

func (h *Handler) updateProcess(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload processPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "processes.update")
	defer span.End()

	process, err := h.svc.UpdateProcess(ctx, id, service.ProcessInput{Name: payload.Name}, auth.CallerFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromProcess(process)).Build()
}

func (h *Handler) deleteProcess(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "processes.delete")
	defer span.End()

	if err := h.svc.DeleteProcess(ctx, id, auth.CallerFrom(c)); err != nil {
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

func pageParams(c echo.Context) (int, int) {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return page, limit
}
