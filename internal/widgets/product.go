package widgets

import (
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// productSpec maps the product-search widget. The mode discriminator is
// the caller's "search_mode" field.
func productSpec() template.Spec {
	return template.Spec{
		Kind:         types.WidgetProduct,
		PrimaryField: "query",
		ModeField:    "search_mode",
		DefaultMode:  "catalog",
		Capacity:     40,
		Entries: map[string]template.Entry{
			"catalog": {
				ID:   "product_catalog_search",
				Args: []string{"category", "max_results"},
			},
			"price_compare": {
				ID:   "product_price_compare_search",
				Args: []string{"category", "max_results", "currency"},
			},
			"availability": {
				ID:   "product_availability_search",
				Args: []string{"category", "region"},
			},
		},
	}
}

func productRules() []router.Rule {
	return []router.Rule{
		{
			Name:         "product_find",
			Widget:       types.WidgetProduct,
			Priority:     8,
			Keywords:     []string{"buy", "product", "shop", "in stock", "price of", "cheapest"},
			Mode:         "catalog",
			ModeField:    "search_mode",
			PrimaryField: "query",
		},
		{
			Name:         "product_compare",
			Widget:       types.WidgetProduct,
			Priority:     9,
			Keywords:     []string{"compare prices", "price comparison", "best deal"},
			Mode:         "price_compare",
			ModeField:    "search_mode",
			PrimaryField: "query",
		},
	}
}
