package artifacts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/stack"
)

func fullResources() map[provider.ID]provider.Resource {
	return map[provider.ID]provider.Resource{
		provider.SourceControl: {
			Provider: provider.SourceControl,
			Name:     "my-app",
			URL:      "https://github.com/acme/my-app",
			CloneURL: "https://github.com/acme/my-app.git",
		},
		provider.Database: {
			Provider: provider.Database,
			Name:     "my-app",
			URL:      "https://abc123.supabase.co",
			Region:   "us-east-1",
		},
		provider.Hosting: {
			Provider: provider.Hosting,
			Name:     "my-app",
			URL:      "https://my-app.vercel.app",
		},
	}
}

func TestBuildFileSet(t *testing.T) {
	files := Build("my-app", fullResources(), stack.Recommend("a todo app"))

	require.Contains(t, files, ".env.example")
	require.Contains(t, files, "INFRASTRUCTURE.md")
	require.Contains(t, files, ".devcontainer/devcontainer.json")
	assert.Len(t, files, 3)
}

func TestEnvTemplateNamesOnly(t *testing.T) {
	files := Build("my-app", fullResources(), stack.Recommend(""))
	env := files[".env.example"]

	assert.Contains(t, env, "DATABASE_URL=\n")
	assert.Contains(t, env, "SUPABASE_ANON_KEY=\n")
	assert.Contains(t, env, "SUPABASE_SERVICE_ROLE_KEY=\n")
	// Values stay empty; only the project URL, which is public, appears.
	assert.NotContains(t, env, "SUPABASE_ANON_KEY=e")
}

func TestInfraDocListsProvisionedResources(t *testing.T) {
	files := Build("my-app", fullResources(), stack.Recommend(""))
	doc := files["INFRASTRUCTURE.md"]

	assert.Contains(t, doc, "# Infrastructure for my-app")
	assert.Contains(t, doc, "https://github.com/acme/my-app")
	assert.Contains(t, doc, "https://abc123.supabase.co")
	assert.Contains(t, doc, "https://my-app.vercel.app")
	assert.Contains(t, doc, "Upgrade")
}

func TestInfraDocRendersStack(t *testing.T) {
	files := Build("my-shop", fullResources(), stack.Recommend("an online shop"))
	doc := files["INFRASTRUCTURE.md"]

	assert.Contains(t, doc, "## Stack")
	assert.Contains(t, doc, "- Framework: nextjs")
	assert.Contains(t, doc, "- Database: supabase")
	assert.Contains(t, doc, "- Hosting: vercel")
	assert.Contains(t, doc, "- Starter schema: commerce")
}

func TestInfraDocOmitsMissingServices(t *testing.T) {
	resources := map[provider.ID]provider.Resource{
		provider.SourceControl: fullResources()[provider.SourceControl],
	}
	files := Build("my-app", resources, stack.Recommend(""))
	doc := files["INFRASTRUCTURE.md"]

	assert.Contains(t, doc, "## Source control")
	assert.NotContains(t, doc, "## Database")
	assert.NotContains(t, doc, "## Hosting")
}

func TestDevcontainerIsValidJSON(t *testing.T) {
	files := Build("my-app", fullResources(), stack.Recommend(""))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(files[".devcontainer/devcontainer.json"]), &parsed))
	assert.Equal(t, "my-app", parsed["name"])

	remoteEnv, ok := parsed["remoteEnv"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "${localEnv:ANTHROPIC_API_KEY}", remoteEnv["ANTHROPIC_API_KEY"])
}
