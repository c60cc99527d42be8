package widgets

import (
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// knowledgeSpec maps the knowledge-retrieval widget. The mode
// discriminator is the caller's "search_type" field.
func knowledgeSpec() template.Spec {
	return template.Spec{
		Kind:         types.WidgetKnowledge,
		PrimaryField: "query",
		ModeField:    "search_type",
		DefaultMode:  "semantic",
		Capacity:     40,
		Entries: map[string]template.Entry{
			"semantic": {
				ID:   "knowledge_semantic_query",
				Args: []string{"top_k", "collection"},
			},
			"keyword": {
				ID:   "knowledge_keyword_query",
				Args: []string{"top_k", "collection"},
			},
			"hybrid": {
				ID:   "knowledge_hybrid_query",
				Args: []string{"top_k", "collection", "alpha"},
			},
		},
	}
}

func knowledgeRules() []router.Rule {
	return []router.Rule{
		{
			Name:         "knowledge_lookup",
			Widget:       types.WidgetKnowledge,
			Priority:     8,
			Keywords:     []string{"knowledge base", "docs", "documentation", "what is", "how do i", "look up"},
			Mode:         "semantic",
			ModeField:    "search_type",
			PrimaryField: "query",
		},
	}
}
