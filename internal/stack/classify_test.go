package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySchema(t *testing.T) {
	cases := []struct {
		description string
		want        Schema
	}{
		{"a todo list for teams", SchemaSaaS},
		{"an online shop for vintage posters", SchemaCommerce},
		{"Marketplace connecting buyers and sellers", SchemaCommerce},
		{"an app with Stripe checkout", SchemaCommerce},
		{"", SchemaSaaS},
		{"project management dashboard", SchemaSaaS},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifySchema(tc.description), "description: %q", tc.description)
	}
}

func TestRecommend(t *testing.T) {
	rec := Recommend("an e-commerce store")

	assert.Equal(t, "nextjs", rec.Framework)
	assert.Equal(t, "supabase", rec.Database)
	assert.Equal(t, "vercel", rec.Hosting)
	assert.Equal(t, SchemaCommerce, rec.Schema)
}
