package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/internal/messaging"
	repo "github.com/millflow/millflow/internal/repository/dispatch"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	"github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/dispatch")

// Service owns the shipment ledger. TotalValue is always recomputed as
// FinishMtr * SaleRate; the stored figure never comes from the client.
type Service struct {
	repo             *repo.Repository
	orders           *orderrepo.Repository
	registry         *registry.Repository
	logger           *zap.Logger
	recorder         *audit.Recorder
	publisher        messaging.Client
	messagingEnabled bool
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Orders     *orderrepo.Repository
	Registry   *registry.Repository
	Config     config.Config
	Logger     *zap.Logger
	Recorder   *audit.Recorder
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:             p.Repository,
		orders:           p.Orders,
		registry:         p.Registry,
		logger:           p.Logger,
		recorder:         p.Recorder,
		publisher:        p.Publisher,
		messagingEnabled: p.Config.Messaging.Enabled,
	}
}

// Input carries every dispatch field. TotalValue is intentionally absent.
type Input struct {
	DispatchDate time.Time
	BillNo       string
	FinishMtr    float64
	SaleRate     float64
	QualityID    *int64
}

// DispatchCreatedEvent is emitted when a new shipment is persisted.
type DispatchCreatedEvent struct {
	Kind       string    `json:"kind"`
	ID         int64     `json:"id"`
	OrderPK    int64     `json:"orderPk"`
	TotalValue float64   `json:"totalValue"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EventKindDispatchCreated routes DispatchCreatedEvent on the shared topic.
const EventKindDispatchCreated = "dispatch.created"

// Create records one shipment against an order.
func (s *Service) Create(ctx context.Context, orderPK int64, in Input, caller audit.Caller) (*entity.Dispatch, error) {
	ctx, span := serviceTracer.Start(ctx, "DispatchService.Create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	order, err := s.resolveOrder(ctx, orderPK)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &entity.Dispatch{
		OrderID:      order.OrderID,
		OrderPK:      orderPK,
		DispatchDate: in.DispatchDate,
		BillNo:       in.BillNo,
		FinishMtr:    in.FinishMtr,
		SaleRate:     in.SaleRate,
		TotalValue:   in.FinishMtr * in.SaleRate,
		QualityID:    in.QualityID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create dispatch", errorbank.WithCause(err))
	}

	s.recorder.Create(audit.ResourceDispatch, idStr(d.ID), map[string]any{
		"orderPk":    orderPK,
		"billNo":     d.BillNo,
		"finishMtr":  d.FinishMtr,
		"saleRate":   d.SaleRate,
		"totalValue": d.TotalValue,
	}, caller)

	s.publishCreated(ctx, d)
	return s.Get(ctx, d.ID)
}

// Get retrieves a dispatch by id.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Dispatch, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("dispatch not found")
		}
		return nil, errorbank.Internal("failed to load dispatch", errorbank.WithCause(err))
	}
	return d, nil
}

// ListByOrder pages through the order's shipments, newest first.
func (s *Service) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.Dispatch, int, error) {
	if _, err := s.resolveOrder(ctx, orderPK); err != nil {
		return nil, 0, err
	}
	dispatches, count, err := s.repo.ListByOrder(ctx, orderPK, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list dispatches", errorbank.WithCause(err))
	}
	return dispatches, count, nil
}

// Update replaces a shipment's fields, recomputing the total value.
func (s *Service) Update(ctx context.Context, id int64, in Input, caller audit.Caller) (*entity.Dispatch, error) {
	ctx, span := serviceTracer.Start(ctx, "DispatchService.Update", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("dispatch not found")
		}
		return nil, errorbank.Internal("failed to load dispatch", errorbank.WithCause(err))
	}

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	updated := &entity.Dispatch{
		ID:           id,
		OrderID:      existing.OrderID,
		OrderPK:      existing.OrderPK,
		DispatchDate: in.DispatchDate,
		BillNo:       in.BillNo,
		FinishMtr:    in.FinishMtr,
		SaleRate:     in.SaleRate,
		TotalValue:   in.FinishMtr * in.SaleRate,
		QualityID:    in.QualityID,
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("dispatch not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update dispatch", errorbank.WithCause(err))
	}

	s.recorder.Update(audit.ResourceDispatch, idStr(id),
		map[string]any{"billNo": existing.BillNo, "finishMtr": existing.FinishMtr, "saleRate": existing.SaleRate, "totalValue": existing.TotalValue},
		map[string]any{"billNo": updated.BillNo, "finishMtr": updated.FinishMtr, "saleRate": updated.SaleRate, "totalValue": updated.TotalValue},
		caller)

	return s.Get(ctx, id)
}

// Delete removes a shipment, keeping its last state in the audit trail.
func (s *Service) Delete(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "DispatchService.Delete", trace.WithAttributes(attribute.Int64("dispatch.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("dispatch not found")
		}
		return errorbank.Internal("failed to load dispatch", errorbank.WithCause(err))
	}

	snapshot := map[string]any{
		"orderPk":    existing.OrderPK,
		"billNo":     existing.BillNo,
		"finishMtr":  existing.FinishMtr,
		"saleRate":   existing.SaleRate,
		"totalValue": existing.TotalValue,
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("dispatch not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete dispatch", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceDispatch, idStr(id), snapshot, caller)
	return nil
}

func (s *Service) resolveOrder(ctx context.Context, orderPK int64) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, orderPK)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

func (s *Service) validate(ctx context.Context, in Input) error {
	if in.FinishMtr <= 0 {
		return errorbank.BadRequest("finish meters must be greater than zero")
	}
	if in.SaleRate < 0 {
		return errorbank.BadRequest("sale rate cannot be negative")
	}
	if in.QualityID != nil {
		if _, err := s.registry.GetQuality(ctx, *in.QualityID); err != nil {
			if errors.Is(err, registry.ErrQualityNotFound) {
				return errorbank.NotFound("quality not found")
			}
			return errorbank.Internal("failed to resolve quality", errorbank.WithCause(err))
		}
	}
	return nil
}

func (s *Service) publishCreated(ctx context.Context, d *entity.Dispatch) {
	if !s.messagingEnabled || s.publisher == nil {
		return
	}
	event := DispatchCreatedEvent{
		Kind:       EventKindDispatchCreated,
		ID:         d.ID,
		OrderPK:    d.OrderPK,
		TotalValue: d.TotalValue,
		CreatedAt:  d.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal dispatch created", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("dispatch-%d", d.ID)), payload); err != nil {
		s.logger.Error("publish dispatch created", zap.Error(err))
	}
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
