// Package artifacts renders the fixed file set pushed into a freshly
// provisioned repository. Rendering is deterministic and never touches
// secret values: environment templates carry variable names only.
package artifacts

import (
	"fmt"
	"strings"

	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/stack"
)

// Build returns path -> content for every artifact file. Resources carry
// only public identifiers, so everything rendered here is safe to commit.
func Build(projectName string, resources map[provider.ID]provider.Resource, rec stack.Recommendation) map[string]string {
	return map[string]string{
		".env.example":                    envTemplate(resources),
		"INFRASTRUCTURE.md":               infraDoc(projectName, resources, rec),
		".devcontainer/devcontainer.json": devcontainer(projectName),
	}
}

func envTemplate(resources map[provider.ID]provider.Resource) string {
	var b strings.Builder
	b.WriteString("# Copy to .env and fill in values from your provider dashboards.\n")
	if db, ok := resources[provider.Database]; ok {
		fmt.Fprintf(&b, "\n# Database project: %s\n", db.URL)
		b.WriteString("DATABASE_URL=\n")
		b.WriteString("SUPABASE_URL=" + db.URL + "\n")
		b.WriteString("SUPABASE_ANON_KEY=\n")
		b.WriteString("SUPABASE_SERVICE_ROLE_KEY=\n")
	}
	if _, ok := resources[provider.Hosting]; ok {
		b.WriteString("\n# Set in the hosting dashboard, not committed.\n")
		b.WriteString("NEXT_PUBLIC_APP_URL=\n")
	}
	return b.String()
}

func infraDoc(projectName string, resources map[provider.ID]provider.Resource, rec stack.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Infrastructure for %s\n\n", projectName)
	b.WriteString("This project was provisioned automatically. Everything below runs on free tiers; upgrade guidance is listed per service.\n")

	b.WriteString("\n## Stack\n\n")
	fmt.Fprintf(&b, "- Framework: %s\n", rec.Framework)
	fmt.Fprintf(&b, "- Database: %s\n", rec.Database)
	fmt.Fprintf(&b, "- Hosting: %s\n", rec.Hosting)
	fmt.Fprintf(&b, "- Starter schema: %s\n", rec.Schema)

	if repo, ok := resources[provider.SourceControl]; ok {
		b.WriteString("\n## Source control\n\n")
		fmt.Fprintf(&b, "- Repository: %s\n", repo.URL)
		fmt.Fprintf(&b, "- Clone: `%s`\n", repo.CloneURL)
	}
	if db, ok := resources[provider.Database]; ok {
		b.WriteString("\n## Database\n\n")
		fmt.Fprintf(&b, "- Project: %s (region %s)\n", db.URL, db.Region)
		b.WriteString("- Free tier: 500 MB storage, pauses after a week of inactivity.\n")
		b.WriteString("- Upgrade: move to the Pro plan before launch to avoid auto-pausing.\n")
	}
	if hosting, ok := resources[provider.Hosting]; ok {
		b.WriteString("\n## Hosting\n\n")
		fmt.Fprintf(&b, "- Deployment: %s\n", hosting.URL)
		b.WriteString("- Free tier: 100 GB bandwidth/month, serverless function limits apply.\n")
		b.WriteString("- Upgrade: a paid team removes the bandwidth cap and adds preview protection.\n")
	}

	b.WriteString("\nSecrets are never committed to this repository; see `.env.example` for the variables each environment needs.\n")
	return b.String()
}

func devcontainer(projectName string) string {
	return fmt.Sprintf(`{
  "name": %q,
  "image": "mcr.microsoft.com/devcontainers/javascript-node:20",
  "customizations": {
    "vscode": {
      "extensions": [
        "dbaeumer.vscode-eslint",
        "esbenp.prettier-vscode",
        "bradlc.vscode-tailwindcss"
      ]
    }
  },
  "forwardPorts": [3000],
  "remoteEnv": {
    "ANTHROPIC_API_KEY": "${localEnv:ANTHROPIC_API_KEY}"
  },
  "postCreateCommand": "npm install"
}
`, projectName)
}
