package milloutput

import (
	"context"
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
	"github.com/millflow/millflow/internal/entity"
	repo "github.com/millflow/millflow/internal/repository/milloutput"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	"github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/milloutput")

// Service owns the finished-material receipt ledger. Bill numbers carry no
// uniqueness rule: a mill may raise several bills against one order.
type Service struct {
	repo     *repo.Repository
	orders   *orderrepo.Repository
	registry *registry.Repository
	logger   *zap.Logger
	recorder *audit.Recorder
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Orders     *orderrepo.Repository
	Registry   *registry.Repository
	Logger     *zap.Logger
	Recorder   *audit.Recorder
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		orders:   p.Orders,
		registry: p.Registry,
		logger:   p.Logger,
		recorder: p.Recorder,
	}
}

// Input carries every mill output field.
type Input struct {
	RecdDate    time.Time
	MillBillNo  string
	FinishedMtr float64
	MillRate    float64
	QualityID   *int64
}

// Create records one receipt of finished material against an order.
func (s *Service) Create(ctx context.Context, orderPK int64, in Input, caller audit.Caller) (*entity.MillOutput, error) {
	ctx, span := serviceTracer.Start(ctx, "MillOutputService.Create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	order, err := s.resolveOrder(ctx, orderPK)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	output := &entity.MillOutput{
		OrderID:     order.OrderID,
		OrderPK:     orderPK,
		RecdDate:    in.RecdDate,
		MillBillNo:  in.MillBillNo,
		FinishedMtr: in.FinishedMtr,
		MillRate:    in.MillRate,
		QualityID:   in.QualityID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, output); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create mill output", errorbank.WithCause(err))
	}

	s.recorder.Create(audit.ResourceMillOutput, idStr(output.ID), map[string]any{
		"orderPk":     orderPK,
		"millBillNo":  output.MillBillNo,
		"finishedMtr": output.FinishedMtr,
		"millRate":    output.MillRate,
	}, caller)

	return s.Get(ctx, output.ID)
}

// Get retrieves a mill output by id.
func (s *Service) Get(ctx context.Context, id int64) (*entity.MillOutput, error) {
	output, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill output not found")
		}
		return nil, errorbank.Internal("failed to load mill output", errorbank.WithCause(err))
	}
	return output, nil
}

// ListByOrder pages through the order's receipts, newest first.
func (s *Service) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.MillOutput, int, error) {
	if _, err := s.resolveOrder(ctx, orderPK); err != nil {
		return nil, 0, err
	}
	outputs, count, err := s.repo.ListByOrder(ctx, orderPK, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list mill outputs", errorbank.WithCause(err))
	}
	return outputs, count, nil
}

// Update replaces a receipt's fields.
func (s *Service) Update(ctx context.Context, id int64, in Input, caller audit.Caller) (*entity.MillOutput, error) {
	ctx, span := serviceTracer.Start(ctx, "MillOutputService.Update", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill output not found")
		}
		return nil, errorbank.Internal("failed to load mill output", errorbank.WithCause(err))
	}

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	updated := &entity.MillOutput{
		ID:          id,
		OrderID:     existing.OrderID,
		OrderPK:     existing.OrderPK,
		RecdDate:    in.RecdDate,
		MillBillNo:  in.MillBillNo,
		FinishedMtr: in.FinishedMtr,
		MillRate:    in.MillRate,
		QualityID:   in.QualityID,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill output not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update mill output", errorbank.WithCause(err))
	}

	s.recorder.Update(audit.ResourceMillOutput, idStr(id),
		map[string]any{"millBillNo": existing.MillBillNo, "finishedMtr": existing.FinishedMtr, "millRate": existing.MillRate},
		map[string]any{"millBillNo": updated.MillBillNo, "finishedMtr": updated.FinishedMtr, "millRate": updated.MillRate},
		caller)

	return s.Get(ctx, id)
}

// Delete removes a receipt, keeping its last state in the audit trail.
func (s *Service) Delete(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "MillOutputService.Delete", trace.WithAttributes(attribute.Int64("mill_output.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("mill output not found")
		}
		return errorbank.Internal("failed to load mill output", errorbank.WithCause(err))
	}

	snapshot := map[string]any{
		"orderPk":     existing.OrderPK,
		"millBillNo":  existing.MillBillNo,
		"finishedMtr": existing.FinishedMtr,
		"millRate":    existing.MillRate,
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("mill output not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete mill output", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceMillOutput, idStr(id), snapshot, caller)
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
	if in.FinishedMtr <= 0 {
		return errorbank.BadRequest("finished meters must be greater than zero")
	}
	if in.MillRate < 0 {
		return errorbank.BadRequest("mill rate cannot be negative")
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

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
