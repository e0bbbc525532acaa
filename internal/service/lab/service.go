package lab

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
	repo "github.com/millflow/millflow/internal/repository/lab"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/lab")

// defaultSeedPrefix prefixes generated lab send numbers.
const defaultSeedPrefix = "LAB-"

// Service tracks sample testing per order item. One active lab per
// (order, item) pair; soft delete frees the pair for a replacement.
type Service struct {
	repo     *repo.Repository
	orders   *orderrepo.Repository
	logger   *zap.Logger
	recorder *audit.Recorder
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Orders     *orderrepo.Repository
	Logger     *zap.Logger
	Recorder   *audit.Recorder
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		orders:   p.Orders,
		logger:   p.Logger,
		recorder: p.Recorder,
	}
}

// Input carries the mutable lab fields.
type Input struct {
	OrderItemID   int64
	LabSendDate   time.Time
	LabSendNumber string
	SendData      entity.LabSendData
	Remarks       string
}

// SeedInput configures bulk lab creation for an order.
type SeedInput struct {
	Prefix           string
	StartIndex       int
	LabSendDate      time.Time
	OverrideExisting bool
}

// SeedResult reports what a seeding run did. Labs holds the resulting active
// lab per order item, covered or fresh.
type SeedResult struct {
	Created int
	Skipped int
	Labs    []*entity.Lab
}

// Create opens a lab record for one order item. A second active lab for the
// same item is rejected; soft-deleting the first frees the slot.
func (s *Service) Create(ctx context.Context, orderPK int64, in Input, caller audit.Caller) (*entity.Lab, error) {
	ctx, span := serviceTracer.Start(ctx, "LabService.Create", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	order, err := s.resolveOrder(ctx, orderPK)
	if err != nil {
		return nil, err
	}
	if !orderHasItem(order, in.OrderItemID) {
		return nil, errorbank.NotFound("order item does not belong to this order")
	}

	if _, err := s.repo.ActiveByOrderItem(ctx, orderPK, in.OrderItemID); err == nil {
		return nil, errorbank.Conflict("an active lab already exists for this order item")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, errorbank.Internal("failed to check lab uniqueness", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	lab := &entity.Lab{
		OrderPK:       orderPK,
		OrderItemID:   in.OrderItemID,
		LabSendDate:   in.LabSendDate,
		LabSendNumber: in.LabSendNumber,
		SendData:      in.SendData,
		Status:        entity.LabStatusSent,
		Remarks:       in.Remarks,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, lab); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errorbank.Conflict("an active lab already exists for this order item")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create lab", errorbank.WithCause(err))
	}

	s.recorder.Create(audit.ResourceLab, idStr(lab.ID), map[string]any{
		"orderPk":       orderPK,
		"orderItemId":   lab.OrderItemID,
		"labSendNumber": lab.LabSendNumber,
		"status":        lab.Status,
	}, caller)

	return lab, nil
}

// Get retrieves a lab record, soft-deleted or not.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Lab, error) {
	lab, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("lab not found")
		}
		return nil, errorbank.Internal("failed to load lab", errorbank.WithCause(err))
	}
	return lab, nil
}

// ListByOrder returns the order's labs; soft-deleted rows only on request.
func (s *Service) ListByOrder(ctx context.Context, orderPK int64, includeDeleted bool) ([]*entity.Lab, error) {
	if _, err := s.resolveOrder(ctx, orderPK); err != nil {
		return nil, err
	}
	labs, err := s.repo.ListByOrder(ctx, orderPK, includeDeleted)
	if err != nil {
		return nil, errorbank.Internal("failed to list labs", errorbank.WithCause(err))
	}
	return labs, nil
}

// Update replaces the mutable fields of an active lab.
func (s *Service) Update(ctx context.Context, id int64, in Input, caller audit.Caller) (*entity.Lab, error) {
	ctx, span := serviceTracer.Start(ctx, "LabService.Update", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	existing, err := s.activeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := &entity.Lab{
		ID:            id,
		OrderPK:       existing.OrderPK,
		OrderItemID:   existing.OrderItemID,
		LabSendDate:   in.LabSendDate,
		LabSendNumber: in.LabSendNumber,
		SendData:      in.SendData,
		Status:        existing.Status,
		Remarks:       in.Remarks,
		UpdatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("lab not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update lab", errorbank.WithCause(err))
	}

	s.recorder.Update(audit.ResourceLab, idStr(id),
		map[string]any{"labSendNumber": existing.LabSendNumber, "remarks": existing.Remarks},
		map[string]any{"labSendNumber": updated.LabSendNumber, "remarks": updated.Remarks},
		caller)

	return s.Get(ctx, id)
}

// UpdateStatus applies the lab status machine: sent may become received or
// cancelled; both are terminal.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string, caller audit.Caller) (*entity.Lab, error) {
	ctx, span := serviceTracer.Start(ctx, "LabService.UpdateStatus", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	switch status {
	case entity.LabStatusReceived, entity.LabStatusCancelled:
	default:
		return nil, errorbank.BadRequest(fmt.Sprintf("unsupported status transition target: %s", status))
	}

	existing, err := s.activeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != entity.LabStatusSent {
		return nil, errorbank.BadRequest(fmt.Sprintf("cannot transition lab from %s to %s", existing.Status, status))
	}

	existing.Status = status
	existing.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("lab not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update lab status", errorbank.WithCause(err))
	}

	s.recorder.StatusChange(audit.ResourceLab, idStr(id), entity.LabStatusSent, status, caller)
	return s.Get(ctx, id)
}

// SoftDelete hides the record and frees its (order, item) slot.
func (s *Service) SoftDelete(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "LabService.SoftDelete", trace.WithAttributes(attribute.Int64("lab.id", id)))
	defer span.End()

	existing, err := s.activeByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("lab not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete lab", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceLab, idStr(id), map[string]any{
		"orderPk":       existing.OrderPK,
		"orderItemId":   existing.OrderItemID,
		"labSendNumber": existing.LabSendNumber,
		"status":        existing.Status,
		"softDeleted":   true,
	}, caller)
	return nil
}

// SeedLabsFromOrder opens a lab for every order item. The item at position i
// gets lab send number prefix + orderID + "-" + (startIndex+i), so re-running
// after a partial failure resumes with the same numbers. Items that already
// carry an active lab are skipped, or overwritten in place when
// OverrideExisting is set; either way the run never creates a duplicate.
func (s *Service) SeedLabsFromOrder(ctx context.Context, orderPK int64, in SeedInput, caller audit.Caller) (*SeedResult, error) {
	ctx, span := serviceTracer.Start(ctx, "LabService.SeedLabsFromOrder", trace.WithAttributes(attribute.Int64("order.id", orderPK)))
	defer span.End()

	order, err := s.resolveOrder(ctx, orderPK)
	if err != nil {
		return nil, err
	}

	prefix := in.Prefix
	if prefix == "" {
		prefix = defaultSeedPrefix
	}
	sendDate := in.LabSendDate
	if sendDate.IsZero() {
		sendDate = time.Now().UTC()
	}

	result := &SeedResult{Labs: make([]*entity.Lab, 0, len(order.Items))}
	for i, item := range order.Items {
		number := fmt.Sprintf("%s%d-%d", prefix, order.OrderID, in.StartIndex+i)

		existing, err := s.repo.ActiveByOrderItem(ctx, orderPK, item.ID)
		switch {
		case err == nil && !in.OverrideExisting:
			result.Skipped++
			result.Labs = append(result.Labs, existing)
			continue
		case err == nil:
			oldNumber := existing.LabSendNumber
			existing.LabSendDate = sendDate
			existing.LabSendNumber = number
			existing.UpdatedAt = time.Now().UTC()
			if err := s.repo.Update(ctx, existing); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "repository error")
				return nil, errorbank.Internal("failed to seed labs", errorbank.WithCause(err))
			}
			result.Created++
			result.Labs = append(result.Labs, existing)

			s.recorder.Update(audit.ResourceLab, idStr(existing.ID),
				map[string]any{"labSendNumber": oldNumber},
				map[string]any{"labSendNumber": number, "seeded": true},
				caller)
			continue
		case !errors.Is(err, repo.ErrNotFound):
			return nil, errorbank.Internal("failed to check lab uniqueness", errorbank.WithCause(err))
		}

		now := time.Now().UTC()
		lab := &entity.Lab{
			OrderPK:       orderPK,
			OrderItemID:   item.ID,
			LabSendDate:   sendDate,
			LabSendNumber: number,
			Status:        entity.LabStatusSent,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Create(ctx, lab); err != nil {
			if database.IsUniqueViolation(err) {
				// A concurrent creator covered the item between the check
				// and the insert; treat it as already covered.
				result.Skipped++
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to seed labs", errorbank.WithCause(err))
		}
		result.Created++
		result.Labs = append(result.Labs, lab)

		s.recorder.Create(audit.ResourceLab, idStr(lab.ID), map[string]any{
			"orderPk":       orderPK,
			"orderItemId":   lab.OrderItemID,
			"labSendNumber": lab.LabSendNumber,
			"seeded":        true,
		}, caller)
	}
	return result, nil
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

// activeByID loads a lab and rejects soft-deleted records for mutation.
func (s *Service) activeByID(ctx context.Context, id int64) (*entity.Lab, error) {
	lab, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("lab not found")
		}
		return nil, errorbank.Internal("failed to load lab", errorbank.WithCause(err))
	}
	if lab.SoftDeleted {
		return nil, errorbank.NotFound("lab not found")
	}
	return lab, nil
}

func orderHasItem(order *entity.Order, itemID int64) bool {
	for _, item := range order.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
