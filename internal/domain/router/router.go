// Package router decides which widget, if any, should receive a piece
// of free text. The core engine only consumes its output contract: a
// widget kind plus initial params, or no widget.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/havenstack/widgetd/internal/shared/types"
)

// Rule matches free text against one widget mode.
type Rule struct {
	Name     string
	Widget   types.WidgetKind
	Priority int      // higher wins among matching rules
	Keywords []string // lowercased; any hit matches
	// Params seeded into the decision when this rule wins. The primary
	// instruction is filled in by the router itself.
	Mode         string
	ModeField    string
	PrimaryField string
}

// Decision is the router's verdict for one piece of text.
type Decision struct {
	Widget     types.WidgetKind
	Params     map[string]interface{}
	Confidence float64
	Rule       string
}

// Router scores free text against registered rules.
type Router struct {
	mu    sync.RWMutex
	rules []Rule
}

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// AddRules registers rules, kept sorted by priority descending.
func (r *Router) AddRules(rules ...Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rules...)
	sort.SliceStable(r.rules, func(i, j int) bool {
		return r.rules[i].Priority > r.rules[j].Priority
	})
}

// Route returns the widget that should handle text, or ok=false when no
// rule matches. Among matching rules the highest priority wins; ties go
// to the rule with more keyword hits.
func (r *Router) Route(text string) (Decision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(text)

	var best *Rule
	bestHits := 0
	for i := range r.rules {
		rule := &r.rules[i]
		hits := countHits(lower, rule.Keywords)
		if hits == 0 {
			continue
		}
		if best == nil || rule.Priority > best.Priority ||
			(rule.Priority == best.Priority && hits > bestHits) {
			best = rule
			bestHits = hits
		}
	}

	if best == nil {
		return Decision{}, false
	}

	params := map[string]interface{}{
		best.PrimaryField: text,
	}
	if best.Mode != "" && best.ModeField != "" {
		params[best.ModeField] = best.Mode
	}

	return Decision{
		Widget:     best.Widget,
		Params:     params,
		Confidence: float64(bestHits) / float64(len(best.Keywords)),
		Rule:       best.Name,
	}, true
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
