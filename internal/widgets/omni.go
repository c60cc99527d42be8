package widgets

import (
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// omniSpec maps the multi-purpose content-generation widget. The mode
// discriminator is the caller's "content_type" field.
func omniSpec() template.Spec {
	return template.Spec{
		Kind:         types.WidgetOmni,
		PrimaryField: "prompt",
		ModeField:    "content_type",
		DefaultMode:  "generic",
		Capacity:     50,
		Entries: map[string]template.Entry{
			"generic": {
				ID:   "omni_generic_draft",
				Args: []string{"tone", "length"},
			},
			"blog_post": {
				ID:   "omni_blog_post_draft",
				Args: []string{"tone", "length", "audience"},
			},
			"email": {
				ID:   "omni_email_draft",
				Args: []string{"tone", "recipient"},
			},
			"summary": {
				ID:   "omni_summary_draft",
				Args: []string{"length", "source_text"},
			},
			"social_post": {
				ID:   "omni_social_post_draft",
				Args: []string{"tone", "platform"},
			},
		},
	}
}

func omniRules() []router.Rule {
	return []router.Rule{
		{
			Name:         "omni_blog",
			Widget:       types.WidgetOmni,
			Priority:     9,
			Keywords:     []string{"blog post", "article", "write a post"},
			Mode:         "blog_post",
			ModeField:    "content_type",
			PrimaryField: "prompt",
		},
		{
			Name:         "omni_email",
			Widget:       types.WidgetOmni,
			Priority:     9,
			Keywords:     []string{"email", "reply to", "follow-up message"},
			Mode:         "email",
			ModeField:    "content_type",
			PrimaryField: "prompt",
		},
		{
			Name:         "omni_summary",
			Widget:       types.WidgetOmni,
			Priority:     9,
			Keywords:     []string{"summarize", "summary", "tl;dr"},
			Mode:         "summary",
			ModeField:    "content_type",
			PrimaryField: "prompt",
		},
		{
			Name:         "omni_write",
			Widget:       types.WidgetOmni,
			Priority:     5,
			Keywords:     []string{"write", "draft", "compose"},
			Mode:         "generic",
			ModeField:    "content_type",
			PrimaryField: "prompt",
		},
	}
}
