package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/session"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/shared/types"
	"github.com/havenstack/widgetd/internal/shared/utils"
)

// SessionHeader mirrors the REST session header; a query parameter is
// also accepted because browser WebSocket clients cannot set headers.
const SessionHeader = "X-Session-ID"

const outboundBuffer = 128

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Same-host UI; tighten when exposed.
	},
}

// Handler manages stream connections.
type Handler struct {
	sessions *session.Manager
	intents  *router.Router
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a stream handler.
func NewHandler(sessions *session.Manager, intents *router.Router, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		intents:  intents,
		metrics:  metrics,
		logger:   logger,
	}
}

type inbound struct {
	Type   string                 `json:"type"`
	Widget string                 `json:"widget,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
	Text   string                 `json:"text,omitempty"`
	ItemID string                 `json:"item_id,omitempty"`
}

// HandleConnection upgrades the request and pumps widget updates to the
// client until it disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	s := h.sessions.GetOrCreate(sessionID)

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	out := make(chan interface{}, outboundBuffer)
	done := make(chan struct{})

	// Single writer; the read loop and the hub pump both feed out.
	go func() {
		defer close(done)
		for msg := range out {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if h.metrics != nil {
				if m, ok := msg.(map[string]interface{}); ok {
					if t, ok := m["type"].(string); ok {
						h.metrics.RecordWSMessage("out", t)
					}
				}
			}
		}
	}()

	snapshots, unsubscribe := s.Hub.Subscribe()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.pump(snapshots, out, done)
	}()

	h.enqueue(out, done, map[string]interface{}{
		"type":       "system",
		"message":    "connected",
		"session_id": s.ID,
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		s.Touch()
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "process":
			h.handleProcess(c, s, msg, out, done)
		case "select":
			kind := types.WidgetKind(msg.Widget)
			if !kind.Valid() || !s.Store.SelectOutput(kind, msg.ItemID) {
				h.sendError(out, done, msg.Widget, "", "item not found")
			}
		case "cancel":
			if kind := types.WidgetKind(msg.Widget); kind.Valid() {
				s.Dispatcher.Cancel(c.Request.Context(), kind)
			}
		case "ack":
			if kind := types.WidgetKind(msg.Widget); kind.Valid() {
				s.Store.Ack(kind)
			}
		case "ping":
			h.enqueue(out, done, map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()})
		default:
			h.sendError(out, done, "", "", "unknown message type")
		}
	}

	unsubscribe()
	<-pumpDone
	close(out)
	<-done
}

// handleProcess dispatches either an explicit widget request or routed
// free text.
func (h *Handler) handleProcess(c *gin.Context, s *session.Session, msg inbound, out chan interface{}, done <-chan struct{}) {
	kind := types.WidgetKind(msg.Widget)
	params := msg.Params

	if err := utils.ValidateParams(params); err != nil {
		h.sendError(out, done, msg.Widget, "", err.Error())
		return
	}
	if err := utils.ValidateText(msg.Text); err != nil {
		h.sendError(out, done, msg.Widget, "", err.Error())
		return
	}

	if msg.Widget == "" {
		decision, ok := h.intents.Route(msg.Text)
		if !ok {
			h.sendError(out, done, "", "", "no widget matches this request")
			return
		}
		kind = decision.Widget
		params = decision.Params
	}

	req, err := s.Dispatcher.StartProcessing(c.Request.Context(), kind, params, "")
	if err != nil {
		h.sendError(out, done, string(kind), "", err.Error())
		return
	}
	h.enqueue(out, done, map[string]interface{}{
		"type":       "accepted",
		"widget":     kind,
		"request_id": req.ID,
	})
}

// pump translates store snapshots into wire messages. Status
// transitions are tracked per widget so terminal messages fire once.
func (h *Handler) pump(snapshots <-chan types.WidgetSnapshot, out chan interface{}, done <-chan struct{}) {
	last := make(map[types.WidgetKind]types.Status)

	for snap := range snapshots {
		for _, msg := range classify(last[snap.Widget], snap) {
			if !h.enqueue(out, done, msg) {
				return
			}
		}
		last[snap.Widget] = snap.Status
	}
}

// classify derives the wire messages for one snapshot given the
// widget's previous status.
func classify(prev types.Status, snap types.WidgetSnapshot) []map[string]interface{} {
	msgs := []map[string]interface{}{{
		"type":     "state",
		"widget":   snap.Widget,
		"snapshot": snap,
	}}

	cur := snap.Current
	switch snap.Status {
	case types.StatusStreaming:
		if cur != nil {
			msgs = append(msgs, map[string]interface{}{
				"type":       "token",
				"widget":     snap.Widget,
				"request_id": cur.RequestID,
				"content":    cur.Content,
			})
		}
	case types.StatusProcessing:
		if cur != nil && cur.Progress != nil {
			msgs = append(msgs, map[string]interface{}{
				"type":       "progress",
				"widget":     snap.Widget,
				"request_id": cur.RequestID,
				"progress":   cur.Progress,
			})
		}
	case types.StatusIdle:
		if (prev == types.StatusProcessing || prev == types.StatusStreaming) && cur != nil {
			msgs = append(msgs,
				map[string]interface{}{
					"type":       "result",
					"widget":     snap.Widget,
					"request_id": cur.RequestID,
					"item":       cur,
				},
				map[string]interface{}{
					"type":       "complete",
					"widget":     snap.Widget,
					"request_id": cur.RequestID,
				})
		}
	case types.StatusError:
		if prev != types.StatusError && cur != nil {
			msgs = append(msgs, map[string]interface{}{
				"type":       "error",
				"widget":     snap.Widget,
				"request_id": cur.RequestID,
				"message":    cur.Content,
			})
		}
	}
	return msgs
}

// enqueue delivers a message unless the writer has exited. Reports
// false once the connection is gone.
func (h *Handler) enqueue(out chan interface{}, done <-chan struct{}, msg map[string]interface{}) bool {
	select {
	case <-done:
		return false
	case out <- msg:
		return true
	}
}

func (h *Handler) sendError(out chan interface{}, done <-chan struct{}, widget, requestID, message string) {
	m := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if widget != "" {
		m["widget"] = widget
	}
	if requestID != "" {
		m["request_id"] = requestID
	}
	h.enqueue(out, done, m)
}
