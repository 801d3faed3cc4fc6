package deploy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/builderbot/config"
)

func newTestForge(t *testing.T, mux *http.ServeMux) *GitHubForge {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	forge, err := NewGitHubForge(zaptest.NewLogger(t), &config.Config{
		GitHub: config.GitHubConfig{Token: "tok", BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)
	return forge
}

func TestGitHubForge(t *testing.T) {
	t.Run("OwnerType", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/orgs/acme", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"login":"acme","type":"Organization"}`)
		})
		forge := newTestForge(t, mux)

		kind, err := forge.OwnerType(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, "Organization", kind)

		_, err = forge.OwnerType(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EnsureRepositoryCreatesPrivate", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/repos/acme/shop", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		})
		mux.HandleFunc("POST /api/v3/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "shop", body["name"])
			assert.Equal(t, true, body["private"])
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"name":"shop","html_url":"https://github.com/acme/shop"}`)
		})
		forge := newTestForge(t, mux)

		url, created, err := forge.EnsureRepository(context.Background(), "acme", "shop")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "https://github.com/acme/shop", url)
	})

	t.Run("EnsureRepositoryReusesExisting", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/repos/acme/shop", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"name":"shop","html_url":"https://github.com/acme/shop"}`)
		})
		forge := newTestForge(t, mux)

		_, created, err := forge.EnsureRepository(context.Background(), "acme", "shop")
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("GetAndUpdateFile", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/repos/acme/infra/contents/docker-compose.yml", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `{"type":"file","encoding":"base64","path":"docker-compose.yml","sha":"abc","content":%q}`,
				base64.StdEncoding.EncodeToString([]byte("services: {}\n")))
		})
		mux.HandleFunc("PUT /api/v3/repos/acme/infra/contents/docker-compose.yml", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Message string `json:"message"`
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Add service shop", body.Message)
			assert.Equal(t, "abc", body.SHA)
			decoded, err := base64.StdEncoding.DecodeString(body.Content)
			assert.NoError(t, err)
			assert.Equal(t, "patched\n", string(decoded))
			fmt.Fprint(w, `{"content":{"path":"docker-compose.yml","sha":"def"}}`)
		})
		forge := newTestForge(t, mux)

		file, err := forge.GetFile(context.Background(), "acme", "infra", "docker-compose.yml")
		require.NoError(t, err)
		assert.Equal(t, "services: {}\n", string(file.Content))
		assert.Equal(t, "abc", file.SHA)

		err = forge.UpdateFile(context.Background(), "acme", "infra", file.Path, []byte("patched\n"), "Add service shop", file.SHA)
		require.NoError(t, err)

		_, err = forge.GetFile(context.Background(), "acme", "infra", "missing.yml")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
