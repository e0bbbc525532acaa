package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/cache"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/messaging"
	dispatchsvc "github.com/millflow/millflow/internal/service/dispatch"
	ordersvc "github.com/millflow/millflow/internal/service/order"
	"github.com/millflow/millflow/internal/worker"
)

var workerTracer = otel.Tracer("github.com/millflow/millflow/worker/pipeline")

// counterTTL bounds how long derived counters live without a refresh.
const counterTTL = 24 * time.Hour

// Module registers the pipeline events worker handler.
var Module = fx.Module("worker_pipeline",
	fx.Provide(
		fx.Annotate(
			NewEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// envelope carries just enough to route an event by kind.
type envelope struct {
	Kind string `json:"kind"`
}

// NewEventsHandler consumes pipeline events from the shared topic and keeps
// per-party and per-order cache counters current.
func NewEventsHandler(logger *zap.Logger, cfg config.Config, store cache.Store) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.pipeline.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Error("failed to decode pipeline event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("event.kind", env.Kind))

		switch env.Kind {
		case ordersvc.EventKindOrderCreated:
			var event ordersvc.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				span.RecordError(err)
				return err
			}
			if err := incrementCounter(ctx, store, fmt.Sprintf("counters:party:%d:orders", event.PartyID)); err != nil {
				logger.Warn("party order counter update failed", zap.Int64("party_id", event.PartyID), zap.Error(err))
			}
			logger.Info("order created event processed",
				zap.Int64("id", event.ID),
				zap.Int64("order_id", event.OrderID),
				zap.Int64("party_id", event.PartyID),
			)

		case dispatchsvc.EventKindDispatchCreated:
			var event dispatchsvc.DispatchCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				span.RecordError(err)
				return err
			}
			if err := incrementCounter(ctx, store, fmt.Sprintf("counters:order:%d:dispatches", event.OrderPK)); err != nil {
				logger.Warn("order dispatch counter update failed", zap.Int64("order_pk", event.OrderPK), zap.Error(err))
			}
			logger.Info("dispatch created event processed",
				zap.Int64("id", event.ID),
				zap.Int64("order_pk", event.OrderPK),
				zap.Float64("total_value", event.TotalValue),
			)

		default:
			logger.Debug("ignoring pipeline event", zap.String("kind", env.Kind))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

// incrementCounter bumps a cached integer counter. Counters are derived
// figures; a lost increment self-heals on the next full refresh, so the
// read-modify-write here does not need to be atomic.
func incrementCounter(ctx context.Context, store cache.Store, key string) error {
	current := int64(0)
	raw, err := store.Get(ctx, key)
	if err == nil {
		if parsed, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			current = parsed
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return store.Set(ctx, key, []byte(strconv.FormatInt(current+1, 10)), counterTTL)
}
