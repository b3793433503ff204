package stack

import "strings"

// Schema names a starter DDL script shipped with the database adapter.
type Schema string

const (
	SchemaSaaS     Schema = "saas"
	SchemaCommerce Schema = "commerce"
)

var commerceKeywords = []string{
	"shop", "store", "ecommerce", "e-commerce", "payment", "checkout",
	"cart", "marketplace", "sell", "order",
}

// ClassifySchema picks a starter schema from the user's free-text app
// description. Deliberately a keyword scan, not a model call: the choice
// only selects which fixed DDL script seeds the database.
func ClassifySchema(description string) Schema {
	lowered := strings.ToLower(description)
	for _, keyword := range commerceKeywords {
		if strings.Contains(lowered, keyword) {
			return SchemaCommerce
		}
	}
	return SchemaSaaS
}

// Recommendation is the public shape of a stack suggestion surfaced at the
// API boundary.
type Recommendation struct {
	Framework string `json:"framework"`
	Database  string `json:"database"`
	Hosting   string `json:"hosting"`
	Schema    Schema `json:"schema"`
}

// Recommend returns the default stack with a schema matched to the
// description. Richer model-backed recommendation lives outside this
// service and can overwrite these fields at the boundary.
func Recommend(description string) Recommendation {
	return Recommendation{
		Framework: "nextjs",
		Database:  "supabase",
		Hosting:   "vercel",
		Schema:    ClassifySchema(description),
	}
}
