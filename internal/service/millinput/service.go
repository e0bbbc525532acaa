package millinput

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
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	repo "github.com/millflow/millflow/internal/repository/millinput"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	"github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/millinput")

// Service owns the greigh issuance ledger for orders.
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

// MeterInput is one split consignment under the same chalan.
type MeterInput struct {
	GreighMtr   float64
	Pcs         int
	QualityID   *int64
	ProcessName string
	Notes       string
}

// Input carries every mill input field.
type Input struct {
	MillID      int64
	MillDate    time.Time
	ChalanNo    string
	GreighMtr   float64
	Pcs         int
	QualityID   *int64
	ProcessName string
	Notes       string
	Meters      []MeterInput
}

// Create records one issuance of material to a mill against an order. The
// chalan number must be unique within the order; repeats across orders are
// legitimate because mills number their own slips.
func (s *Service) Create(ctx context.Context, orderPK int64, in Input, caller audit.Caller) (*entity.MillInput, error) {
	ctx, span := serviceTracer.Start(ctx, "MillInputService.Create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	order, err := s.resolveOrder(ctx, orderPK)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	if err := s.checkChalan(ctx, orderPK, in.ChalanNo, 0); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	input := &entity.MillInput{
		OrderID:          order.OrderID,
		OrderPK:          orderPK,
		MillID:           in.MillID,
		MillDate:         in.MillDate,
		ChalanNo:         in.ChalanNo,
		GreighMtr:        in.GreighMtr,
		Pcs:              in.Pcs,
		QualityID:        in.QualityID,
		ProcessName:      in.ProcessName,
		Notes:            in.Notes,
		AdditionalMeters: buildMeters(in.Meters),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, input); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errorbank.Conflict(fmt.Sprintf("chalan number %s already exists for this order", in.ChalanNo))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create mill input", errorbank.WithCause(err))
	}

	s.recorder.Create(audit.ResourceMillInput, idStr(input.ID), map[string]any{
		"orderPk":   orderPK,
		"millId":    input.MillID,
		"chalanNo":  input.ChalanNo,
		"greighMtr": input.GreighMtr,
		"pcs":       input.Pcs,
	}, caller)

	return s.Get(ctx, input.ID)
}

// Get retrieves a mill input with its relations.
func (s *Service) Get(ctx context.Context, id int64) (*entity.MillInput, error) {
	input, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill input not found")
		}
		return nil, errorbank.Internal("failed to load mill input", errorbank.WithCause(err))
	}
	return input, nil
}

// ListByOrder pages through the order's issuance ledger, newest first.
func (s *Service) ListByOrder(ctx context.Context, orderPK int64, page, limit int) ([]*entity.MillInput, int, error) {
	if _, err := s.resolveOrder(ctx, orderPK); err != nil {
		return nil, 0, err
	}
	inputs, count, err := s.repo.ListByOrder(ctx, orderPK, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list mill inputs", errorbank.WithCause(err))
	}
	return inputs, count, nil
}

// Update replaces a row's fields, re-checking the chalan against its
// siblings within the order.
func (s *Service) Update(ctx context.Context, id int64, in Input, caller audit.Caller) (*entity.MillInput, error) {
	ctx, span := serviceTracer.Start(ctx, "MillInputService.Update", trace.WithAttributes(attribute.Int64("mill_input.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill input not found")
		}
		return nil, errorbank.Internal("failed to load mill input", errorbank.WithCause(err))
	}

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	if err := s.checkChalan(ctx, existing.OrderPK, in.ChalanNo, id); err != nil {
		return nil, err
	}

	updated := &entity.MillInput{
		ID:               id,
		OrderID:          existing.OrderID,
		OrderPK:          existing.OrderPK,
		MillID:           in.MillID,
		MillDate:         in.MillDate,
		ChalanNo:         in.ChalanNo,
		GreighMtr:        in.GreighMtr,
		Pcs:              in.Pcs,
		QualityID:        in.QualityID,
		ProcessName:      in.ProcessName,
		Notes:            in.Notes,
		AdditionalMeters: buildMeters(in.Meters),
		UpdatedAt:        time.Now().UTC(),
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errorbank.Conflict(fmt.Sprintf("chalan number %s already exists for this order", in.ChalanNo))
		}
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("mill input not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update mill input", errorbank.WithCause(err))
	}

	s.recorder.Update(audit.ResourceMillInput, idStr(id),
		map[string]any{"millId": existing.MillID, "chalanNo": existing.ChalanNo, "greighMtr": existing.GreighMtr, "pcs": existing.Pcs},
		map[string]any{"millId": updated.MillID, "chalanNo": updated.ChalanNo, "greighMtr": updated.GreighMtr, "pcs": updated.Pcs},
		caller)

	return s.Get(ctx, id)
}

// Delete removes a mill input, keeping its last state in the audit trail.
func (s *Service) Delete(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "MillInputService.Delete", trace.WithAttributes(attribute.Int64("mill_input.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("mill input not found")
		}
		return errorbank.Internal("failed to load mill input", errorbank.WithCause(err))
	}

	snapshot := map[string]any{
		"orderPk":   existing.OrderPK,
		"millId":    existing.MillID,
		"chalanNo":  existing.ChalanNo,
		"greighMtr": existing.GreighMtr,
		"pcs":       existing.Pcs,
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("mill input not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete mill input", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceMillInput, idStr(id), snapshot, caller)
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
	if in.ChalanNo == "" {
		return errorbank.BadRequest("chalan number is required")
	}
	if in.GreighMtr <= 0 {
		return errorbank.BadRequest("greigh meters must be greater than zero")
	}
	if in.Pcs <= 0 {
		return errorbank.BadRequest("pieces must be greater than zero")
	}
	if in.MillID <= 0 {
		return errorbank.BadRequest("mill is required")
	}
	if _, err := s.registry.GetMill(ctx, in.MillID); err != nil {
		if errors.Is(err, registry.ErrMillNotFound) {
			return errorbank.NotFound("mill not found")
		}
		return errorbank.Internal("failed to resolve mill", errorbank.WithCause(err))
	}
	if err := s.checkQuality(ctx, in.QualityID, ""); err != nil {
		return err
	}
	for i, m := range in.Meters {
		if m.GreighMtr <= 0 {
			return errorbank.BadRequest(fmt.Sprintf("meters[%d]: greigh meters must be greater than zero", i))
		}
		if m.Pcs <= 0 {
			return errorbank.BadRequest(fmt.Sprintf("meters[%d]: pieces must be greater than zero", i))
		}
		if err := s.checkQuality(ctx, m.QualityID, fmt.Sprintf("meters[%d]: ", i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkQuality(ctx context.Context, qualityID *int64, prefix string) error {
	if qualityID == nil {
		return nil
	}
	if _, err := s.registry.GetQuality(ctx, *qualityID); err != nil {
		if errors.Is(err, registry.ErrQualityNotFound) {
			return errorbank.NotFound(prefix + "quality not found")
		}
		return errorbank.Internal("failed to resolve quality", errorbank.WithCause(err))
	}
	return nil
}

func (s *Service) checkChalan(ctx context.Context, orderPK int64, chalanNo string, excludeID int64) error {
	exists, err := s.repo.ChalanExists(ctx, orderPK, chalanNo, excludeID)
	if err != nil {
		return errorbank.Internal("failed to check chalan uniqueness", errorbank.WithCause(err))
	}
	if exists {
		return errorbank.Conflict(fmt.Sprintf("chalan number %s already exists for this order", chalanNo))
	}
	return nil
}

func buildMeters(inputs []MeterInput) []*entity.AdditionalMeter {
	meters := make([]*entity.AdditionalMeter, 0, len(inputs))
	for _, in := range inputs {
		meters = append(meters, &entity.AdditionalMeter{
			GreighMtr:   in.GreighMtr,
			Pcs:         in.Pcs,
			QualityID:   in.QualityID,
			ProcessName: in.ProcessName,
			Notes:       in.Notes,
		})
	}
	return meters
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
