package order

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
	"github.com/millflow/millflow/internal/cache"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	"github.com/millflow/millflow/internal/messaging"
	repo "github.com/millflow/millflow/internal/repository/order"
	"github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/order")

// orderIDRetries bounds the retry loop when two creators race the counter.
const orderIDRetries = 3

// Service encapsulates business logic around orders.
type Service struct {
	repo      *repo.Repository
	registry  *registry.Repository
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	recorder  *audit.Recorder
	publisher messaging.Client
	messaging messagingConfig
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Registry   *registry.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Recorder   *audit.Recorder
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:      p.Repository,
		registry:  p.Registry,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		recorder:  p.Recorder,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// ItemInput is one order line as supplied by the caller.
type ItemInput struct {
	QualityID   *int64
	Quantity    float64
	Description string
	ImageURLs   []string
}

// Input carries every order field; PUT replays it in full.
type Input struct {
	Type         string
	ArrivalDate  time.Time
	DeliveryDate time.Time
	PONumber     string
	StyleNo      string
	PartyID      int64
	Items        []ItemInput
}

// Create validates the input, allocates the sequential order number and
// persists the order with its items.
func (s *Service) Create(ctx context.Context, in Input, caller audit.Caller) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create")
	defer span.End()

	if err := s.validate(ctx, in, 0); err != nil {
		return nil, err
	}

	order := &entity.Order{
		Type:         in.Type,
		ArrivalDate:  in.ArrivalDate,
		DeliveryDate: in.DeliveryDate,
		PONumber:     in.PONumber,
		StyleNo:      in.StyleNo,
		Status:       entity.OrderStatusPending,
		PartyID:      in.PartyID,
		Items:        buildItems(in.Items),
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	// The counter alone is racy; the unique index on order_id decides, so a
	// collision just means draw again.
	var lastErr error
	for attempt := 0; attempt < orderIDRetries; attempt++ {
		orderID, err := s.repo.NextOrderID(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "counter error")
			return nil, errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
		}
		order.OrderID = orderID
		order.ID = 0

		err = s.repo.Create(ctx, order)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if database.IsUniqueViolation(err) {
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	if lastErr != nil {
		if database.IsUniqueViolation(lastErr) {
			return nil, errorbank.Conflict("order with this PO number and style already exists for the party")
		}
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(lastErr))
	}

	s.recorder.Create(audit.ResourceOrder, idStr(order.ID), map[string]any{
		"orderId":  order.OrderID,
		"type":     order.Type,
		"poNumber": order.PONumber,
		"styleNo":  order.StyleNo,
		"partyId":  order.PartyID,
		"items":    len(order.Items),
	}, caller)

	s.publishCreated(ctx, order)
	return s.Get(ctx, order.ID)
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return order, nil
}

// List returns a page of orders with the total filtered count.
func (s *Service) List(ctx context.Context, f repo.ListFilter) ([]*entity.Order, int, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, count, err := s.repo.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, 0, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, count, nil
}

// Update replaces every order field and rewrites the items, re-validating as
// on create. Partial updates are not supported for orders.
func (s *Service) Update(ctx context.Context, id int64, in Input, caller audit.Caller) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.validate(ctx, in, id); err != nil {
		return nil, err
	}

	updated := &entity.Order{
		ID:           id,
		OrderID:      existing.OrderID,
		Type:         in.Type,
		ArrivalDate:  in.ArrivalDate,
		DeliveryDate: in.DeliveryDate,
		PONumber:     in.PONumber,
		StyleNo:      in.StyleNo,
		Status:       existing.Status,
		PartyID:      in.PartyID,
		Items:        buildItems(in.Items),
		CreatedAt:    existing.CreatedAt,
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errorbank.Conflict("order with this PO number and style already exists for the party")
		}
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update order", errorbank.WithCause(err))
	}

	s.recorder.Update(audit.ResourceOrder, idStr(id),
		map[string]any{"type": existing.Type, "poNumber": existing.PONumber, "styleNo": existing.StyleNo, "partyId": existing.PartyID},
		map[string]any{"type": updated.Type, "poNumber": updated.PONumber, "styleNo": updated.StyleNo, "partyId": updated.PartyID},
		caller)

	s.invalidateCache(ctx, id)
	return s.Get(ctx, id)
}

// UpdateStatus applies the status machine: pending -> delivered is the only
// transition.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string, caller audit.Caller) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if status != entity.OrderStatusDelivered {
		return nil, errorbank.BadRequest(fmt.Sprintf("unsupported status transition target: %s", status))
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if existing.Status != entity.OrderStatusPending {
		return nil, errorbank.BadRequest(fmt.Sprintf("cannot transition order from %s to %s", existing.Status, status))
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	s.recorder.StatusChange(audit.ResourceOrder, idStr(id), existing.Status, status, caller)
	s.invalidateCache(ctx, id)
	return s.Get(ctx, id)
}

// Delete snapshots the order, removes it, and records the snapshot so the
// audit trail keeps forensic value after the row is gone.
func (s *Service) Delete(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("order not found")
		}
		return errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	snapshot := map[string]any{
		"orderId":  existing.OrderID,
		"type":     existing.Type,
		"poNumber": existing.PONumber,
		"styleNo":  existing.StyleNo,
		"partyId":  existing.PartyID,
		"status":   existing.Status,
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete order", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceOrder, idStr(id), snapshot, caller)
	s.invalidateCache(ctx, id)
	return nil
}

func (s *Service) validate(ctx context.Context, in Input, excludeID int64) error {
	switch in.Type {
	case entity.OrderTypeDying, entity.OrderTypePrinting:
	default:
		return errorbank.BadRequest(fmt.Sprintf("type must be %s or %s", entity.OrderTypeDying, entity.OrderTypePrinting))
	}
	if in.PartyID <= 0 {
		return errorbank.BadRequest("party is required")
	}
	if len(in.Items) == 0 {
		return errorbank.BadRequest("at least one order item is required")
	}
	for i, item := range in.Items {
		if item.Quantity <= 0 {
			return errorbank.BadRequest(fmt.Sprintf("items[%d]: quantity must be greater than zero", i))
		}
	}

	if _, err := s.registry.GetParty(ctx, in.PartyID); err != nil {
		if errors.Is(err, registry.ErrPartyNotFound) {
			return errorbank.NotFound("party not found")
		}
		return errorbank.Internal("failed to resolve party", errorbank.WithCause(err))
	}
	for i, item := range in.Items {
		if item.QualityID == nil {
			continue
		}
		if _, err := s.registry.GetQuality(ctx, *item.QualityID); err != nil {
			if errors.Is(err, registry.ErrQualityNotFound) {
				return errorbank.NotFound(fmt.Sprintf("items[%d]: quality not found", i))
			}
			return errorbank.Internal("failed to resolve quality", errorbank.WithCause(err))
		}
	}

	if in.PONumber != "" && in.StyleNo != "" {
		exists, err := s.repo.POStyleExists(ctx, in.PartyID, in.PONumber, in.StyleNo, excludeID)
		if err != nil {
			return errorbank.Internal("failed to check order uniqueness", errorbank.WithCause(err))
		}
		if exists {
			return errorbank.Conflict("order with this PO number and style already exists for the party")
		}
	}
	return nil
}

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	OrderID   int64     `json:"orderId"`
	PartyID   int64     `json:"partyId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventKindOrderCreated routes OrderCreatedEvent on the shared topic.
const EventKindOrderCreated = "order.created"

func (s *Service) publishCreated(ctx context.Context, order *entity.Order) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := OrderCreatedEvent{
		Kind:      EventKindOrderCreated,
		ID:        order.ID,
		OrderID:   order.OrderID,
		PartyID:   order.PartyID,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order created", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%d", order.ID)), payload); err != nil {
		s.logger.Error("publish order created", zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}

func buildItems(inputs []ItemInput) []*entity.OrderItem {
	items := make([]*entity.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, &entity.OrderItem{
			QualityID:   in.QualityID,
			Quantity:    in.Quantity,
			Description: in.Description,
			ImageURLs:   in.ImageURLs,
		})
	}
	return items
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
