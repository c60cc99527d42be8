package template

import (
	"fmt"
	"sync"

	"github.com/havenstack/widgetd/internal/shared/types"
)

// DefaultPlaceholder seeds the primary instruction when the caller
// supplied an empty one.
const DefaultPlaceholder = "Describe what you need"

// Entry names one backend template and the modifier keys it accepts.
type Entry struct {
	ID string
	// Args lists the optional modifier keys copied from caller params
	// into template args. Keys outside this list never leak through.
	Args []string
}

// Spec declares a widget kind's complete mapping table.
type Spec struct {
	Kind         types.WidgetKind
	PrimaryField string // e.g. "prompt" or "query"
	ModeField    string // discriminator key in caller params
	DefaultMode  string // must exist in Entries
	Placeholder  string // empty means DefaultPlaceholder
	Capacity     int    // history capacity for this widget
	Entries      map[string]Entry
}

func (s Spec) validate() error {
	if !s.Kind.Valid() {
		return &types.MappingError{Widget: s.Kind, Reason: "kind not in closed widget set"}
	}
	if s.PrimaryField == "" {
		return &types.MappingError{Widget: s.Kind, Reason: "primary field not declared"}
	}
	if len(s.Entries) == 0 {
		return &types.MappingError{Widget: s.Kind, Reason: "empty template table"}
	}
	if _, ok := s.Entries[s.DefaultMode]; !ok {
		return &types.MappingError{Widget: s.Kind, Reason: fmt.Sprintf("default mode %q has no entry", s.DefaultMode)}
	}
	for mode, e := range s.Entries {
		if e.ID == "" {
			return &types.MappingError{Widget: s.Kind, Reason: fmt.Sprintf("mode %q maps to empty template id", mode)}
		}
	}
	return nil
}

// Resolve maps caller params to a directive. Total: unrecognized modes
// fall back to the default entry, an empty primary instruction becomes
// the placeholder.
func (s Spec) Resolve(params map[string]interface{}) types.Directive {
	mode, _ := params[s.ModeField].(string)
	entry, ok := s.Entries[mode]
	if !ok {
		entry = s.Entries[s.DefaultMode]
	}

	primary, _ := params[s.PrimaryField].(string)
	if primary == "" {
		primary = s.Placeholder
		if primary == "" {
			primary = DefaultPlaceholder
		}
	}

	args := make(map[string]interface{}, len(entry.Args)+1)
	args[s.PrimaryField] = primary
	for _, key := range entry.Args {
		if v, present := params[key]; present {
			args[key] = v
		}
	}

	return types.Directive{TemplateID: entry.ID, TemplateArgs: args}
}

// Registry holds the closed set of widget template specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[types.WidgetKind]Spec
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[types.WidgetKind]Spec)}
}

// Register adds a widget's template spec. Malformed specs are the one
// reachable source of MappingError.
func (r *Registry) Register(s Spec) error {
	if err := s.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[s.Kind]; exists {
		return &types.MappingError{Widget: s.Kind, Reason: "spec already registered"}
	}
	r.specs[s.Kind] = s
	return nil
}

// Resolve maps (kind, params) to a directive. The only failure is an
// unregistered kind.
func (r *Registry) Resolve(kind types.WidgetKind, params map[string]interface{}) (types.Directive, error) {
	r.mu.RLock()
	spec, ok := r.specs[kind]
	r.mu.RUnlock()

	if !ok {
		return types.Directive{}, types.ErrUnknownWidget
	}
	return spec.Resolve(params), nil
}

// Spec returns the registered spec for a kind.
func (r *Registry) Spec(kind types.WidgetKind) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specs[kind]
	return s, ok
}

// Kinds returns all registered widget kinds.
func (r *Registry) Kinds() []types.WidgetKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]types.WidgetKind, 0, len(r.specs))
	for k := range r.specs {
		kinds = append(kinds, k)
	}
	return kinds
}

// Complete verifies every kind in the closed widget set has a spec.
// Called once at startup so a missing registration fails fast.
func (r *Registry) Complete() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range types.Kinds() {
		if _, ok := r.specs[k]; !ok {
			return &types.MappingError{Widget: k, Reason: "no template spec registered"}
		}
	}
	return nil
}
