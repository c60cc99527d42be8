package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/ingest"
	"github.com/havenstack/widgetd/internal/domain/store"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/infrastructure/tracing"
	"github.com/havenstack/widgetd/internal/shared/id"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// Transport carries an envelope to the agent service and returns its
// event stream. Implementations close the channel when the stream ends.
type Transport interface {
	Dispatch(ctx context.Context, env types.Envelope) (<-chan types.StreamEvent, error)
	Cancel(ctx context.Context, requestID string) error
}

// Dispatcher turns widget parameters into dispatched requests. It is
// session-scoped: one dispatcher per session, one store behind it.
type Dispatcher struct {
	// lifecycle bounds ingestion goroutines; streams outlive the HTTP
	// request that started them.
	lifecycle context.Context

	registry  *template.Registry
	store     *store.Store
	ingestor  *ingest.Ingestor
	transport Transport
	sessionID string
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	mu    sync.Mutex
	stops map[string]context.CancelFunc // in-flight stream contexts by request id
}

// New creates a dispatcher for one session.
func New(lifecycle context.Context, reg *template.Registry, st *store.Store, in *ingest.Ingestor, tr Transport, sessionID string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		lifecycle: lifecycle,
		registry:  reg,
		store:     st,
		ingestor:  in,
		transport: tr,
		sessionID: sessionID,
		logger:    logger,
		stops:     make(map[string]context.CancelFunc),
	}
}

// WithMetrics adds metrics tracking to the dispatcher.
func (d *Dispatcher) WithMetrics(m *monitoring.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// StartProcessing resolves parameters for a widget kind, supersedes any
// in-flight request, and dispatches a fresh one. The only error callers
// ever see is an unknown widget kind; transport failures are settled
// into the store as error items and the zero request is returned with
// nil error so late UI reads observe consistent state, not exceptions.
func (d *Dispatcher) StartProcessing(ctx context.Context, kind types.WidgetKind, params map[string]interface{}, userID string) (types.WidgetRequest, error) {
	directive, err := d.registry.Resolve(kind, params)
	if err != nil {
		return types.WidgetRequest{}, err
	}

	req := types.WidgetRequest{
		ID:          id.NewRequestID().String(),
		Widget:      kind,
		SessionID:   d.sessionID,
		UserID:      userID,
		Directive:   directive,
		SubmittedAt: time.Now(),
	}

	superseded, hadActive := d.store.ActiveRequest(kind)
	d.store.Begin(req)
	if hadActive {
		// Begin already invalidated the old id; release its stream so
		// the transport closes the connection instead of waiting for
		// the next stale event or the idle timer.
		d.stopStream(superseded)
	}

	// The stream must outlive the HTTP request that started it, so the
	// transport runs under a per-request context derived from the
	// session lifecycle, not the handler ctx. The caller's trace ids are
	// carried over so outbound headers join the same trace, and the
	// context is cancelled when ingestion stops so an abandoned stream
	// releases its connection instead of lingering until shutdown.
	reqCtx, stop := context.WithCancel(tracing.WithTrace(d.lifecycle,
		tracing.GetTraceID(ctx), tracing.GetSpanID(ctx)))

	events, err := d.transport.Dispatch(reqCtx, req.Envelope())
	if err != nil {
		stop()
		derr := &types.DispatchError{Widget: kind, Err: err}
		d.logger.Warn("dispatch rejected",
			zap.String("widget", string(kind)),
			zap.String("request_id", req.ID),
			zap.Error(err))
		if d.metrics != nil {
			d.metrics.IncDispatchErrors(string(kind))
			d.metrics.RecordDispatch(string(kind), "rejected")
		}
		d.store.FailDispatch(kind, req.ID, derr.Error())
		return req, nil
	}

	if d.metrics != nil {
		d.metrics.RecordDispatch(string(kind), "accepted")
	}
	d.logger.Info("request dispatched",
		zap.String("widget", string(kind)),
		zap.String("request_id", req.ID),
		zap.String("template_id", directive.TemplateID))

	d.mu.Lock()
	d.stops[req.ID] = stop
	d.mu.Unlock()

	go func() {
		defer d.stopStream(req.ID)
		d.ingestor.Run(reqCtx, kind, req.ID, events)
	}()
	return req, nil
}

// stopStream cancels a tracked stream context, if still present. The
// synthetic abort this provokes in the ingestor is dropped by the
// store's id guard whenever the request is no longer active.
func (d *Dispatcher) stopStream(requestID string) {
	d.mu.Lock()
	stop, ok := d.stops[requestID]
	delete(d.stops, requestID)
	d.mu.Unlock()
	if ok {
		stop()
	}
}

// Cancel abandons the widget's in-flight request, if any, and tells the
// agent service to stop producing for it. Best effort on the remote
// side; the local id guard is what actually protects state.
func (d *Dispatcher) Cancel(ctx context.Context, kind types.WidgetKind) bool {
	requestID, ok := d.store.CancelActive(kind)
	if !ok {
		return false
	}
	d.stopStream(requestID)
	if err := d.transport.Cancel(ctx, requestID); err != nil {
		d.logger.Debug("remote cancel failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	return true
}

// ClearHistory empties a widget's history. A remote cancel is issued
// for any abandoned in-flight request.
func (d *Dispatcher) ClearHistory(ctx context.Context, kind types.WidgetKind) {
	if requestID, abandoned := d.store.ClearHistory(kind); abandoned {
		d.stopStream(requestID)
		if err := d.transport.Cancel(ctx, requestID); err != nil {
			d.logger.Debug("remote cancel failed",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}
}
