package widgets

import (
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
)

// Specs returns the template specs for every widget kind.
func Specs() []template.Spec {
	return []template.Spec{
		dreamSpec(),
		omniSpec(),
		knowledgeSpec(),
		productSpec(),
	}
}

// RegisterTemplates registers every widget spec and verifies the
// registry covers the closed widget set.
func RegisterTemplates(reg *template.Registry) error {
	for _, spec := range Specs() {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return reg.Complete()
}

// RegisterRoutes installs every widget's intent routing rules.
func RegisterRoutes(r *router.Router) {
	r.AddRules(dreamRules()...)
	r.AddRules(omniRules()...)
	r.AddRules(knowledgeRules()...)
	r.AddRules(productRules()...)
}
