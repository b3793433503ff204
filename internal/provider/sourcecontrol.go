package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

var ErrRepositoryRequired = errors.New("repository full name required")

// SourceControlAdapter creates GitHub repositories and pushes generated
// artifact files into them.
type SourceControlAdapter struct {
	// TemplateOwner/TemplateRepo select an optional template repository to
	// generate from. When empty, a plain repository is created.
	TemplateOwner string
	TemplateRepo  string

	// newClient is swapped in tests to point at a local server.
	newClient func(ctx context.Context, token string) *github.Client
}

func NewSourceControlAdapter(templateOwner, templateRepo string) *SourceControlAdapter {
	return &SourceControlAdapter{
		TemplateOwner: templateOwner,
		TemplateRepo:  templateRepo,
		newClient:     newGitHubClient,
	}
}

func newGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

func (a *SourceControlAdapter) Provision(ctx context.Context, input Input) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	client := a.newClient(ctx, input.Credential.Token)

	if a.TemplateOwner != "" && a.TemplateRepo != "" {
		repo, resp, err := client.Repositories.CreateFromTemplate(ctx, a.TemplateOwner, a.TemplateRepo, &github.TemplateRepoRequest{
			Name:        github.String(input.ProjectName),
			Description: github.String(input.Description),
			Private:     github.Bool(true),
		})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				// The template repository does not exist (or the token
				// cannot see it). Recoverable: fall through to the caller
				// with remediation instead of failing the step.
				return Outcome{
					Remediation: fmt.Sprintf(
						"template repository %s/%s was not found; publish it or grant the token access, then re-run provisioning",
						a.TemplateOwner, a.TemplateRepo),
				}, nil
			}
			return Outcome{}, fmt.Errorf("failed to create repository from template: %w", err)
		}
		return Outcome{Resource: repoResource(repo)}, nil
	}

	repo, _, err := client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(input.ProjectName),
		Description: github.String(input.Description),
		Private:     github.Bool(true),
		AutoInit:    github.Bool(true),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create repository: %w", err)
	}
	return Outcome{Resource: repoResource(repo)}, nil
}

// PushFiles commits each file to the default branch of the repository
// named by resource. File contents must already be fully resolved; this
// method never sees secret references.
func (a *SourceControlAdapter) PushFiles(ctx context.Context, credential Credential, resource Resource, files map[string]string, message string) error {
	owner, name, err := splitFullName(resource.Name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	client := a.newClient(ctx, credential.Token)
	for path, content := range files {
		_, _, err := client.Repositories.CreateFile(ctx, owner, name, path, &github.RepositoryContentFileOptions{
			Message: github.String(message),
			Content: []byte(content),
		})
		if err != nil {
			return fmt.Errorf("failed to push %s: %w", path, err)
		}
		slog.Debug("Pushed artifact file", "repo", resource.Name, "path", path)
	}
	return nil
}

func repoResource(repo *github.Repository) *Resource {
	return &Resource{
		Provider: SourceControl,
		Name:     repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
		CloneURL: repo.GetCloneURL(),
	}
}

func splitFullName(fullName string) (owner, name string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%q: %w", fullName, ErrRepositoryRequired)
	}
	return parts[0], parts[1], nil
}
