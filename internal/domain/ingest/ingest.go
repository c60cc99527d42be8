package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/store"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// DefaultIdleTimeout bounds the gap between consecutive events before
// the stream is declared dead.
const DefaultIdleTimeout = 60 * time.Second

// Ingestor drains event streams into the store. One Run per dispatched
// request; the store's id guard makes concurrent runs for superseded
// requests harmless.
type Ingestor struct {
	store       *store.Store
	idleTimeout time.Duration
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

// New creates an ingestor bound to a store.
func New(st *store.Store, idleTimeout time.Duration, logger *zap.Logger) *Ingestor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:       st,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// WithMetrics adds metrics tracking to the ingestor.
func (in *Ingestor) WithMetrics(m *monitoring.Metrics) *Ingestor {
	in.metrics = m
	return in
}

// Run consumes events for one request until a terminal event, the
// channel closes, the context ends, or the idle timeout fires. Every
// abnormal exit is converted into a synthetic error event so the widget
// never hangs in a processing state.
func (in *Ingestor) Run(ctx context.Context, kind types.WidgetKind, requestID string, events <-chan types.StreamEvent) {
	if in.metrics != nil {
		in.metrics.IncActiveStreams()
		defer in.metrics.DecActiveStreams()
	}

	timer := time.NewTimer(in.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Producer closed without a terminal event. Treat like
				// an upstream failure.
				in.fail(kind, requestID, (&types.StreamError{
					RequestID: requestID,
					Message:   "stream closed before completion",
				}).Error())
				return
			}

			applied := in.store.Apply(kind, ev)
			if !applied {
				// Superseded or abandoned; drain quietly so the
				// producer is not blocked, but stop tracking.
				in.logger.Debug("dropping stale stream",
					zap.String("widget", string(kind)),
					zap.String("request_id", requestID))
				go drain(events)
				return
			}
			if ev.Kind.Terminal() {
				return
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(in.idleTimeout)

		case <-timer.C:
			if in.metrics != nil {
				in.metrics.IncStreamTimeouts(string(kind))
			}
			in.fail(kind, requestID, (&types.TimeoutError{
				RequestID: requestID,
				After:     in.idleTimeout,
			}).Error())
			go drain(events)
			return

		case <-ctx.Done():
			in.fail(kind, requestID, "stream aborted: "+ctx.Err().Error())
			go drain(events)
			return
		}
	}
}

// fail injects a synthetic error event through the same Apply path as
// real events, so the stale-id guard and state transitions apply
// uniformly.
func (in *Ingestor) fail(kind types.WidgetKind, requestID, message string) {
	in.logger.Warn("stream terminated abnormally",
		zap.String("widget", string(kind)),
		zap.String("request_id", requestID),
		zap.String("reason", message))

	in.store.Apply(kind, types.StreamEvent{
		Kind:      types.EventError,
		RequestID: requestID,
		Message:   message,
	})
}

// drain keeps reading a dead stream until the producer closes it.
func drain(events <-chan types.StreamEvent) {
	for range events {
	}
}
