package widgets

import (
	"testing"

	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
)

func TestRegisterTemplatesCoversAllKinds(t *testing.T) {
	reg := template.NewRegistry()
	if err := RegisterTemplates(reg); err != nil {
		t.Fatalf("RegisterTemplates: %v", err)
	}
	for _, kind := range types.Kinds() {
		if _, ok := reg.Spec(kind); !ok {
			t.Fatalf("kind %s missing from registry", kind)
		}
	}
}

func TestSpecsDeclareSaneCapacities(t *testing.T) {
	for _, spec := range Specs() {
		if spec.Capacity <= 0 {
			t.Fatalf("widget %s has capacity %d", spec.Kind, spec.Capacity)
		}
	}
}

func TestDreamMapping(t *testing.T) {
	reg := template.NewRegistry()
	if err := RegisterTemplates(reg); err != nil {
		t.Fatalf("RegisterTemplates: %v", err)
	}

	d, err := reg.Resolve(types.WidgetDream, map[string]interface{}{
		"prompt":       "a lighthouse at dusk",
		"style":        "text_to_image",
		"aspect_ratio": "16:9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.TemplateID != "text_to_image_prompt" {
		t.Fatalf("template = %s", d.TemplateID)
	}
	if d.TemplateArgs["prompt"] != "a lighthouse at dusk" || d.TemplateArgs["aspect_ratio"] != "16:9" {
		t.Fatalf("args = %v", d.TemplateArgs)
	}
}

func TestOmniModeTemplates(t *testing.T) {
	reg := template.NewRegistry()
	if err := RegisterTemplates(reg); err != nil {
		t.Fatalf("RegisterTemplates: %v", err)
	}

	cases := map[string]string{
		"generic":     "omni_generic_draft",
		"blog_post":   "omni_blog_post_draft",
		"email":       "omni_email_draft",
		"summary":     "omni_summary_draft",
		"social_post": "omni_social_post_draft",
		"unheard-of":  "omni_generic_draft",
	}
	for mode, want := range cases {
		d, err := reg.Resolve(types.WidgetOmni, map[string]interface{}{
			"prompt":       "x",
			"content_type": mode,
		})
		if err != nil {
			t.Fatalf("Resolve(%s): %v", mode, err)
		}
		if d.TemplateID != want {
			t.Fatalf("mode %s → %s, want %s", mode, d.TemplateID, want)
		}
	}
}

func TestRoutingEndToEnd(t *testing.T) {
	r := router.New()
	RegisterRoutes(r)

	cases := []struct {
		text   string
		widget types.WidgetKind
	}{
		{"draw me a picture of a fox", types.WidgetDream},
		{"upscale this to higher resolution", types.WidgetDream},
		{"write a blog post about Go", types.WidgetOmni},
		{"summarize this document", types.WidgetOmni},
		{"what is a circuit breaker", types.WidgetKnowledge},
		{"compare prices for headphones", types.WidgetProduct},
	}
	for _, tc := range cases {
		d, ok := r.Route(tc.text)
		if !ok {
			t.Fatalf("no route for %q", tc.text)
		}
		if d.Widget != tc.widget {
			t.Fatalf("%q routed to %s, want %s", tc.text, d.Widget, tc.widget)
		}
	}

	if _, ok := r.Route("zzzz qqqq"); ok {
		t.Fatal("nonsense text routed")
	}
}

func TestRoutedParamsResolveDirectly(t *testing.T) {
	// Router output must be valid mapper input for the chosen widget.
	reg := template.NewRegistry()
	if err := RegisterTemplates(reg); err != nil {
		t.Fatalf("RegisterTemplates: %v", err)
	}
	r := router.New()
	RegisterRoutes(r)

	d, ok := r.Route("draw a lighthouse")
	if !ok {
		t.Fatal("no route")
	}
	directive, err := reg.Resolve(d.Widget, d.Params)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if directive.TemplateID != "text_to_image_prompt" {
		t.Fatalf("template = %s", directive.TemplateID)
	}
	if directive.TemplateArgs["prompt"] != "draw a lighthouse" {
		t.Fatalf("prompt = %v", directive.TemplateArgs["prompt"])
	}
}
