package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeflow/forgeflow/internal/stack"
)

//go:embed schemas/*.sql
var starterSchemas embed.FS

var (
	ErrOrganizationRequired = errors.New("database organization id required")
	ErrProjectNotReady      = errors.New("database project did not become ready in time")
)

// DatabaseAdapter creates a managed Postgres project through a
// Supabase-style management API, waits for it to settle, fetches the
// generated API keys, and applies a starter schema chosen from the
// project description.
type DatabaseAdapter struct {
	BaseURL string
	Region  string

	client *http.Client

	// readyAttempts/readyBackoff bound the settle poll. The attempt
	// count alone would allow ninety seconds, but the CallTimeout
	// context on Provision cuts polling off at sixty.
	readyAttempts int
	readyBackoff  time.Duration
}

func NewDatabaseAdapter(baseURL, region string) *DatabaseAdapter {
	return &DatabaseAdapter{
		BaseURL:       baseURL,
		Region:        region,
		client:        &http.Client{Timeout: CallTimeout},
		readyAttempts: 30,
		readyBackoff:  3 * time.Second,
	}
}

type databaseProject struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	Status string `json:"status"`
}

type databaseAPIKey struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

func (a *DatabaseAdapter) Provision(ctx context.Context, input Input) (Outcome, error) {
	orgID := input.Credential.Extra["organization_id"]
	if orgID == "" {
		return Outcome{}, ErrOrganizationRequired
	}
	if input.Secrets == nil {
		return Outcome{}, errors.New("database provisioning requires a secret sink")
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	dbPassword, err := generatePassword()
	if err != nil {
		return Outcome{}, err
	}

	project, err := a.createProject(ctx, input, orgID, dbPassword)
	if err != nil {
		return Outcome{}, err
	}

	if err := a.waitUntilReady(ctx, input.Credential.Token, project.ID); err != nil {
		return Outcome{}, err
	}

	keys, err := a.fetchAPIKeys(ctx, input.Credential.Token, project.ID)
	if err != nil {
		return Outcome{}, err
	}

	host := fmt.Sprintf("db.%s.supabase.co", project.ID)
	if err := storeSecrets(input.Secrets, project.ID, host, dbPassword, keys); err != nil {
		return Outcome{}, err
	}

	schema := stack.ClassifySchema(input.Description)
	if err := a.applySchema(ctx, input.Credential.Token, project.ID, schema); err != nil {
		return Outcome{}, err
	}

	return Outcome{Resource: &Resource{
		Provider: Database,
		Name:     project.ID,
		URL:      fmt.Sprintf("https://%s.supabase.co", project.ID),
		Host:     host,
		Region:   project.Region,
	}}, nil
}

func (a *DatabaseAdapter) createProject(ctx context.Context, input Input, orgID, dbPassword string) (*databaseProject, error) {
	body := map[string]string{
		"name":            input.ProjectName,
		"organization_id": orgID,
		"db_pass":         dbPassword,
		"region":          a.Region,
		"plan":            "free",
	}

	var project databaseProject
	if err := a.do(ctx, input.Credential.Token, http.MethodPost, "/v1/projects", body, &project); err != nil {
		return nil, fmt.Errorf("failed to create database project: %w", err)
	}
	return &project, nil
}

func (a *DatabaseAdapter) waitUntilReady(ctx context.Context, token, projectID string) error {
	for attempt := 0; attempt < a.readyAttempts; attempt++ {
		var project databaseProject
		err := a.do(ctx, token, http.MethodGet, "/v1/projects/"+projectID, nil, &project)
		if err == nil && project.Status == "ACTIVE_HEALTHY" {
			return nil
		}
		if err != nil {
			slog.Debug("Database readiness poll failed", "project_id", projectID, "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrProjectNotReady, ctx.Err())
		case <-time.After(a.readyBackoff):
		}
	}
	return ErrProjectNotReady
}

func (a *DatabaseAdapter) fetchAPIKeys(ctx context.Context, token, projectID string) (map[string]string, error) {
	var raw []databaseAPIKey
	if err := a.do(ctx, token, http.MethodGet, "/v1/projects/"+projectID+"/api-keys", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch database API keys: %w", err)
	}

	keys := make(map[string]string, len(raw))
	for _, key := range raw {
		keys[key.Name] = key.APIKey
	}
	return keys, nil
}

func storeSecrets(sink SecretSink, projectID, host, dbPassword string, keys map[string]string) error {
	entries := map[string]string{
		"database_url":              fmt.Sprintf("postgresql://postgres:%s@%s:5432/postgres", dbPassword, host),
		"database_anon_key":         keys["anon"],
		"database_service_role_key": keys["service_role"],
		"database_project_ref":      projectID,
	}
	for key, value := range entries {
		if err := sink.Store(key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

func (a *DatabaseAdapter) applySchema(ctx context.Context, token, projectID string, schema stack.Schema) error {
	ddl, err := starterSchemas.ReadFile(fmt.Sprintf("schemas/%s.sql", schema))
	if err != nil {
		return fmt.Errorf("failed to load starter schema %q: %w", schema, err)
	}

	body := map[string]string{"query": string(ddl)}
	if err := a.do(ctx, token, http.MethodPost, "/v1/projects/"+projectID+"/database/query", body, nil); err != nil {
		return fmt.Errorf("failed to apply starter schema: %w", err)
	}
	slog.Info("Applied starter schema", "project_id", projectID, "schema", schema)
	return nil
}

func (a *DatabaseAdapter) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func generatePassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate database password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
