package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/session"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/infrastructure/resilience"
	"github.com/havenstack/widgetd/internal/shared/types"
	"github.com/havenstack/widgetd/internal/shared/utils"
)

// SessionHeader carries the caller's session id. A fresh id is minted
// and echoed back when the header is absent.
const SessionHeader = "X-Session-ID"

// AgentProbe is the slice of the agent transport health reporting needs.
type AgentProbe interface {
	Health(ctx context.Context) error
	BreakerState() resilience.State
}

// Handler serves the widget REST surface.
type Handler struct {
	sessions *session.Manager
	intents  *router.Router
	agent    AgentProbe
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
}

// NewHandler creates the REST handler.
func NewHandler(sessions *session.Manager, intents *router.Router, agent AgentProbe, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		intents:  intents,
		agent:    agent,
		metrics:  metrics,
		logger:   logger,
		started:  time.Now(),
	}
}

// Session resolves the caller's session from the request header,
// creating one on first contact. The id is always echoed back.
func (h *Handler) Session(c *gin.Context) *session.Session {
	s := h.sessions.GetOrCreate(c.GetHeader(SessionHeader))
	c.Header(SessionHeader, s.ID)
	return s
}

func kindParam(c *gin.Context) (types.WidgetKind, bool) {
	kind := types.WidgetKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": types.ErrUnknownWidget.Error(), "kind": string(kind)})
		return "", false
	}
	return kind, true
}

// Health reports service liveness and agent reachability.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	agentStatus := "ok"
	if err := h.agent.Health(ctx); err != nil {
		agentStatus = "unreachable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "widgetd",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"sessions":       h.sessions.Count(),
		"agent": gin.H{
			"status":  agentStatus,
			"breaker": h.agent.BreakerState().String(),
		},
	})
}

// ListWidgets returns snapshots for every widget kind.
func (h *Handler) ListWidgets(c *gin.Context) {
	s := h.Session(c)
	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID,
		"widgets":    s.Store.SnapshotAll(),
	})
}

// GetWidget returns one widget snapshot.
func (h *Handler) GetWidget(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	s := h.Session(c)
	c.JSON(http.StatusOK, s.Store.Snapshot(kind))
}

type processRequest struct {
	Params map[string]interface{} `json:"params"`
	UserID string                 `json:"user_id"`
}

// Process dispatches a new request for a widget, superseding any
// in-flight one. Accepted requests return 202 immediately; results
// arrive through snapshots and the stream.
func (h *Handler) Process(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var body processRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := utils.ValidateParams(body.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := h.Session(c)
	req, err := s.Dispatcher.StartProcessing(c.Request.Context(), kind, body.Params, body.UserID)
	if err != nil {
		if errors.Is(err, types.ErrUnknownWidget) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": string(kind)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"request_id": req.ID,
		"widget":     kind,
		"snapshot":   s.Store.Snapshot(kind),
	})
}

type selectRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// Select points the widget's current output at a history item.
func (h *Handler) Select(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var body selectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id required"})
		return
	}

	s := h.Session(c)
	if !s.Store.SelectOutput(kind, body.ItemID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found", "item_id": body.ItemID})
		return
	}
	c.JSON(http.StatusOK, s.Store.Snapshot(kind))
}

// Cancel abandons the widget's in-flight request without dispatching a
// replacement.
func (h *Handler) Cancel(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	s := h.Session(c)
	cancelled := s.Dispatcher.Cancel(c.Request.Context(), kind)
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
		"snapshot":  s.Store.Snapshot(kind),
	})
}

// Ack clears a surfaced error, re-arming the widget.
func (h *Handler) Ack(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	s := h.Session(c)
	acknowledged := s.Store.Ack(kind)
	c.JSON(http.StatusOK, gin.H{
		"acknowledged": acknowledged,
		"snapshot":     s.Store.Snapshot(kind),
	})
}

// ClearHistory drops every history item for the widget.
func (h *Handler) ClearHistory(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	s := h.Session(c)
	s.Dispatcher.ClearHistory(c.Request.Context(), kind)
	c.Status(http.StatusNoContent)
}

type routeRequest struct {
	Text string `json:"text" binding:"required"`
}

// Route previews intent routing for free text without dispatching.
func (h *Handler) Route(c *gin.Context) {
	var body routeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}
	if err := utils.ValidateText(body.Text); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, ok := h.intents.Route(body.Text)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"widget":     decision.Widget,
		"params":     decision.Params,
		"confidence": decision.Confidence,
		"rule":       decision.Rule,
	})
}
