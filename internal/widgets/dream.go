package widgets

import (
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// dreamSpec maps the image-generation widget. The mode discriminator is
// the caller's "style" field.
func dreamSpec() template.Spec {
	return template.Spec{
		Kind:         types.WidgetDream,
		PrimaryField: "prompt",
		ModeField:    "style",
		DefaultMode:  "text_to_image",
		Placeholder:  "An image worth generating",
		Capacity:     25,
		Entries: map[string]template.Entry{
			"text_to_image": {
				ID:   "text_to_image_prompt",
				Args: []string{"aspect_ratio", "negative_prompt", "seed"},
			},
			"image_to_image": {
				ID:   "image_to_image_prompt",
				Args: []string{"source_image_url", "strength", "seed"},
			},
			"upscale": {
				ID:   "upscale_prompt",
				Args: []string{"source_image_url", "scale"},
			},
		},
	}
}

func dreamRules() []router.Rule {
	return []router.Rule{
		{
			Name:         "dream_generate",
			Widget:       types.WidgetDream,
			Priority:     10,
			Keywords:     []string{"draw", "image", "picture", "illustration", "render", "generate an image"},
			Mode:         "text_to_image",
			ModeField:    "style",
			PrimaryField: "prompt",
		},
		{
			Name:         "dream_upscale",
			Widget:       types.WidgetDream,
			Priority:     11,
			Keywords:     []string{"upscale", "higher resolution", "enlarge"},
			Mode:         "upscale",
			ModeField:    "style",
			PrimaryField: "prompt",
		},
	}
}
