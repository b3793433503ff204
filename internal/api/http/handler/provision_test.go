package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/forgeflow/internal/api/http/dto"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/provider"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// subjectAs stands in for the JWT middleware in handler tests.
func subjectAs(subjectID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("subject_id", subjectID)
		c.Next()
	}
}

type stubAdapter struct {
	resource *provider.Resource
	err      error

	input provider.Input
}

func (a *stubAdapter) Provision(_ context.Context, input provider.Input) (provider.Outcome, error) {
	a.input = input
	if a.err != nil {
		return provider.Outcome{}, a.err
	}
	return provider.Outcome{Resource: a.resource}, nil
}

func setupProvisionRouter(h *ProvisionHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/provision", subjectAs("subject-1"), h.Provision)
	return r
}

func TestProvision(t *testing.T) {
	tokens := credstore.NewMemoryStore()
	err := tokens.Save(context.Background(), credstore.Token{
		SubjectID:   "subject-1",
		Provider:    provider.SourceControl,
		AccessToken: "gho_token",
		UpdatedAt:   time.Now(),
	})
	require.NoError(t, err)

	adapters := provider.Registry{
		provider.SourceControl: &stubAdapter{resource: &provider.Resource{
			Provider: provider.SourceControl,
			Name:     "my-app",
			URL:      "https://github.com/acme/my-app",
		}},
	}
	o := orchestrator.New(adapters, nil, nil, nil)
	h := NewProvisionHandler(o, tokens)
	r := setupProvisionRouter(h)

	body, _ := json.Marshal(dto.ProvisionRequest{ProjectName: "My App", Description: "a todo app"})
	req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.Resources, provider.SourceControl)
	assert.Empty(t, result.Errors)
}

func TestProvisionInlineCredentials(t *testing.T) {
	// No stored tokens at all: the request body supplies the credential.
	adapter := &stubAdapter{resource: &provider.Resource{
		Provider: provider.SourceControl,
		Name:     "my-app",
		URL:      "https://github.com/acme/my-app",
	}}
	o := orchestrator.New(provider.Registry{provider.SourceControl: adapter}, nil, nil, nil)
	h := NewProvisionHandler(o, credstore.NewMemoryStore())
	r := setupProvisionRouter(h)

	body, _ := json.Marshal(dto.ProvisionRequest{
		ProjectName: "my-app",
		Credentials: map[string]dto.ProvisionCredential{
			"source_control": {Token: "ghp_inline"},
		},
	})
	req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ghp_inline", adapter.input.Credential.Token)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestProvisionInlineCredentialOverridesStored(t *testing.T) {
	tokens := credstore.NewMemoryStore()
	err := tokens.Save(context.Background(), credstore.Token{
		SubjectID:   "subject-1",
		Provider:    provider.SourceControl,
		AccessToken: "gho_stored",
		UpdatedAt:   time.Now(),
	})
	require.NoError(t, err)

	adapter := &stubAdapter{resource: &provider.Resource{Provider: provider.SourceControl, Name: "my-app"}}
	o := orchestrator.New(provider.Registry{provider.SourceControl: adapter}, nil, nil, nil)
	h := NewProvisionHandler(o, tokens)
	r := setupProvisionRouter(h)

	body, _ := json.Marshal(dto.ProvisionRequest{
		ProjectName: "my-app",
		Credentials: map[string]dto.ProvisionCredential{
			"source_control": {Token: "ghp_fresh"},
		},
	})
	req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ghp_fresh", adapter.input.Credential.Token)
}

func TestProvisionInlineCredentialRejected(t *testing.T) {
	h := NewProvisionHandler(orchestrator.New(provider.Registry{}, nil, nil, nil), credstore.NewMemoryStore())
	r := setupProvisionRouter(h)

	for name, credentials := range map[string]map[string]dto.ProvisionCredential{
		"unknown provider": {"mainframe": {Token: "x"}},
		"empty token":      {"source_control": {}},
	} {
		t.Run(name, func(t *testing.T) {
			body, _ := json.Marshal(dto.ProvisionRequest{ProjectName: "my-app", Credentials: credentials})
			req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestProvisionMissingProjectName(t *testing.T) {
	h := NewProvisionHandler(orchestrator.New(provider.Registry{}, nil, nil, nil), credstore.NewMemoryStore())
	r := setupProvisionRouter(h)

	body, _ := json.Marshal(map[string]string{"description": "no name"})
	req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProvisionNoConnectedProviders(t *testing.T) {
	// Subject has never completed an OAuth flow, so no credentials can
	// be loaded and validation rejects the run.
	h := NewProvisionHandler(orchestrator.New(provider.Registry{}, nil, nil, nil), credstore.NewMemoryStore())
	r := setupProvisionRouter(h)

	body, _ := json.Marshal(dto.ProvisionRequest{ProjectName: "my-app"})
	req, _ := http.NewRequest("POST", "/api/v1/provision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
