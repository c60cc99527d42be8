package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsJSON exposes current counters as JSON for dashboards that do
// not scrape Prometheus.
func (h *Handler) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}
