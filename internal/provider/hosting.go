package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrRepositoryMissing is returned when the hosting adapter is invoked
// without the repository resource it links against. The orchestrator is
// expected to skip the step instead of triggering this.
var ErrRepositoryMissing = errors.New("hosting requires a provisioned repository")

// HostingAdapter creates a deployment project on a Vercel-style platform,
// linked to an already-created repository, with environment variables wired
// from earlier steps.
type HostingAdapter struct {
	BaseURL string

	client *http.Client
}

func NewHostingAdapter(baseURL string) *HostingAdapter {
	return &HostingAdapter{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: CallTimeout},
	}
}

type hostingEnvVar struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

type hostingProjectRequest struct {
	Name          string `json:"name"`
	GitRepository struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
	} `json:"gitRepository"`
	EnvironmentVariables []hostingEnvVar `json:"environmentVariables,omitempty"`
}

type hostingProjectResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *HostingAdapter) Provision(ctx context.Context, input Input) (Outcome, error) {
	if input.RepoURL == "" {
		return Outcome{}, ErrRepositoryMissing
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	payload := hostingProjectRequest{Name: input.ProjectName}
	payload.GitRepository.Type = "github"
	payload.GitRepository.Repo = repoSlug(input.RepoURL)
	for key, value := range input.Env {
		payload.EnvironmentVariables = append(payload.EnvironmentVariables, hostingEnvVar{
			Key:    key,
			Value:  value,
			Type:   "encrypted",
			Target: []string{"production", "preview"},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, err
	}

	endpoint := a.BaseURL + "/v10/projects"
	if teamID := input.Credential.Extra["team_id"]; teamID != "" {
		endpoint += "?teamId=" + url.QueryEscape(teamID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Authorization", "Bearer "+input.Credential.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create hosting project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Outcome{}, fmt.Errorf("failed to create hosting project: status %d: %s", resp.StatusCode, detail)
	}

	var project hostingProjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode hosting response: %w", err)
	}

	return Outcome{Resource: &Resource{
		Provider: Hosting,
		Name:     project.Name,
		URL:      fmt.Sprintf("https://%s.vercel.app", project.Name),
	}}, nil
}

// repoSlug reduces a repository URL or full name to "owner/name", which is
// what the hosting API expects in its git link.
func repoSlug(repoURL string) string {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
		return strings.TrimPrefix(parsed.Path, "/")
	}
	return trimmed
}
