package template

import (
	"errors"
	"testing"

	"github.com/havenstack/widgetd/internal/shared/types"
)

func dreamSpec() Spec {
	return Spec{
		Kind:         types.WidgetDream,
		PrimaryField: "prompt",
		ModeField:    "style",
		DefaultMode:  "text_to_image",
		Placeholder:  "Describe the image you want",
		Capacity:     25,
		Entries: map[string]Entry{
			"text_to_image":  {ID: "text_to_image_prompt", Args: []string{"negative_prompt", "aspect_ratio"}},
			"image_to_image": {ID: "image_to_image_prompt", Args: []string{"source_image", "strength"}},
			"upscale":        {ID: "upscale_prompt", Args: []string{"source_image", "scale"}},
		},
	}
}

func TestResolveKnownMode(t *testing.T) {
	d := dreamSpec().Resolve(map[string]interface{}{
		"prompt":       "a red fox",
		"style":        "upscale",
		"source_image": "img_123",
		"scale":        float64(2),
	})

	if d.TemplateID != "upscale_prompt" {
		t.Fatalf("template = %s, want upscale_prompt", d.TemplateID)
	}
	if d.TemplateArgs["prompt"] != "a red fox" {
		t.Fatalf("prompt arg = %v", d.TemplateArgs["prompt"])
	}
	if d.TemplateArgs["source_image"] != "img_123" || d.TemplateArgs["scale"] != float64(2) {
		t.Fatalf("declared args missing: %v", d.TemplateArgs)
	}
}

func TestResolveUnknownModeFallsBack(t *testing.T) {
	d := dreamSpec().Resolve(map[string]interface{}{
		"prompt": "a red fox",
		"style":  "watercolor",
	})
	if d.TemplateID != "text_to_image_prompt" {
		t.Fatalf("template = %s, want default entry", d.TemplateID)
	}
}

func TestResolveEmptyPrimaryUsesPlaceholder(t *testing.T) {
	d := dreamSpec().Resolve(map[string]interface{}{})
	if d.TemplateArgs["prompt"] != "Describe the image you want" {
		t.Fatalf("prompt arg = %v, want spec placeholder", d.TemplateArgs["prompt"])
	}

	bare := dreamSpec()
	bare.Placeholder = ""
	d = bare.Resolve(nil)
	if d.TemplateArgs["prompt"] != DefaultPlaceholder {
		t.Fatalf("prompt arg = %v, want default placeholder", d.TemplateArgs["prompt"])
	}
}

func TestResolveDropsUndeclaredKeys(t *testing.T) {
	d := dreamSpec().Resolve(map[string]interface{}{
		"prompt":   "a red fox",
		"style":    "text_to_image",
		"strength": 0.8, // declared for image_to_image only
		"api_key":  "secret",
	})
	if _, ok := d.TemplateArgs["strength"]; ok {
		t.Fatal("arg declared for another mode leaked")
	}
	if _, ok := d.TemplateArgs["api_key"]; ok {
		t.Fatal("undeclared arg leaked")
	}
}

func TestResolveIsTotal(t *testing.T) {
	// No combination of params may panic or produce an empty template.
	inputs := []map[string]interface{}{
		nil,
		{},
		{"style": 42},
		{"prompt": 3.14},
		{"style": "", "prompt": ""},
		{"style": "image_to_image"},
	}
	spec := dreamSpec()
	for i, params := range inputs {
		d := spec.Resolve(params)
		if d.TemplateID == "" {
			t.Fatalf("input %d produced empty template id", i)
		}
		if d.TemplateArgs["prompt"] == "" {
			t.Fatalf("input %d produced empty primary arg", i)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	bad := dreamSpec()
	bad.DefaultMode = "nope"
	var mapErr *types.MappingError
	if err := reg.Register(bad); !errors.As(err, &mapErr) {
		t.Fatalf("err = %v, want MappingError", err)
	}

	bad = dreamSpec()
	bad.PrimaryField = ""
	if err := reg.Register(bad); err == nil {
		t.Fatal("registered spec without primary field")
	}

	bad = dreamSpec()
	bad.Kind = "mystery"
	if err := reg.Register(bad); err == nil {
		t.Fatal("registered spec outside closed kind set")
	}

	if err := reg.Register(dreamSpec()); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := reg.Register(dreamSpec()); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestRegistryResolveUnknownKind(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve(types.WidgetDream, nil); !errors.Is(err, types.ErrUnknownWidget) {
		t.Fatalf("err = %v, want ErrUnknownWidget", err)
	}

	if err := reg.Register(dreamSpec()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Resolve(types.WidgetDream, map[string]interface{}{"prompt": "x"}); err != nil {
		t.Fatalf("resolve after register: %v", err)
	}
	if _, err := reg.Resolve(types.WidgetKind("bogus"), nil); !errors.Is(err, types.ErrUnknownWidget) {
		t.Fatalf("err = %v, want ErrUnknownWidget", err)
	}
}

func TestCompleteRequiresAllKinds(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(dreamSpec()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Complete(); err == nil {
		t.Fatal("Complete passed with missing kinds")
	}
}
