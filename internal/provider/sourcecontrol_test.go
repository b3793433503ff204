package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubStub(t *testing.T, handler http.Handler) (*httptest.Server, func(ctx context.Context, token string) *github.Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	newClient := func(_ context.Context, _ string) *github.Client {
		client := github.NewClient(nil)
		base, err := url.Parse(server.URL + "/")
		require.NoError(t, err)
		client.BaseURL = base
		return client
	}
	return server, newClient
}

func TestSourceControlCreateRepository(t *testing.T) {
	_, newClient := githubStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/user/repos", r.URL.Path)

		var payload struct {
			Name    string `json:"name"`
			Private bool   `json:"private"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "my-shop", payload.Name)
		assert.True(t, payload.Private)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"full_name": "acme/my-shop",
			"html_url": "https://github.com/acme/my-shop",
			"clone_url": "https://github.com/acme/my-shop.git"
		}`))
	}))

	adapter := NewSourceControlAdapter("", "")
	adapter.newClient = newClient

	outcome, err := adapter.Provision(context.Background(), Input{
		ProjectName: "my-shop",
		Description: "an online shop",
		Credential:  Credential{Provider: SourceControl, Token: "ghp_x"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Resource)
	assert.Equal(t, "acme/my-shop", outcome.Resource.Name)
	assert.Equal(t, "https://github.com/acme/my-shop", outcome.Resource.URL)
	assert.Equal(t, "https://github.com/acme/my-shop.git", outcome.Resource.CloneURL)
}

func TestSourceControlTemplateNotReady(t *testing.T) {
	_, newClient := githubStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/starter/generate", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	}))

	adapter := NewSourceControlAdapter("acme", "starter")
	adapter.newClient = newClient

	outcome, err := adapter.Provision(context.Background(), Input{
		ProjectName: "my-shop",
		Credential:  Credential{Provider: SourceControl, Token: "ghp_x"},
	})
	require.NoError(t, err)
	assert.Nil(t, outcome.Resource)
	assert.Contains(t, outcome.Remediation, "acme/starter")
	assert.Contains(t, outcome.Remediation, "re-run provisioning")
}

func TestSourceControlTemplateFailure(t *testing.T) {
	_, newClient := githubStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "name already exists"}`))
	}))

	adapter := NewSourceControlAdapter("acme", "starter")
	adapter.newClient = newClient

	_, err := adapter.Provision(context.Background(), Input{
		ProjectName: "my-shop",
		Credential:  Credential{Provider: SourceControl, Token: "ghp_x"},
	})
	assert.Error(t, err)
}

func TestPushFiles(t *testing.T) {
	var paths []string
	_, newClient := githubStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"content": {}}`))
	}))

	adapter := NewSourceControlAdapter("", "")
	adapter.newClient = newClient

	err := adapter.PushFiles(context.Background(),
		Credential{Provider: SourceControl, Token: "ghp_x"},
		Resource{Provider: SourceControl, Name: "acme/my-shop"},
		map[string]string{
			".env.example":      "DATABASE_URL=\n",
			"INFRASTRUCTURE.md": "# Infrastructure\n",
		},
		"Add artifacts")
	require.NoError(t, err)

	assert.Len(t, paths, 2)
	for _, path := range paths {
		assert.Contains(t, path, "/repos/acme/my-shop/contents/")
	}
}

func TestPushFilesBadResourceName(t *testing.T) {
	adapter := NewSourceControlAdapter("", "")

	err := adapter.PushFiles(context.Background(),
		Credential{Provider: SourceControl, Token: "ghp_x"},
		Resource{Provider: SourceControl, Name: "no-owner"},
		map[string]string{"README.md": "x"}, "msg")
	assert.ErrorIs(t, err, ErrRepositoryRequired)
}
