package load

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/config"
	"github.com/macina-app/macina/internal/messaging"
	loadsvc "github.com/macina-app/macina/internal/service/load"
	"github.com/macina-app/macina/internal/worker"
)

var workerTracer = otel.Tracer("github.com/macina-app/macina/worker/load")

// Module registers load-related worker handlers.
var Module = fx.Module("worker_load",
	fx.Provide(
		fx.Annotate(
			NewStateChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewStateChangedHandler sets up a worker handler that records load
// lifecycle transitions from the event stream.
func NewStateChangedHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.loads.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event loadsvc.LoadStateChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode load state changed", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		logger.Info("load state changed",
			zap.Int64("load_id", event.LoadID),
			zap.Int64("mill_id", event.MillID),
			zap.String("previous_state", event.PreviousState),
			zap.String("state", event.State),
			zap.String("total_weight", event.TotalWeight.StringFixed(2)),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
