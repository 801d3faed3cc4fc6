package llm

import (
	"context"
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

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func newCompletionServer(t *testing.T, reply string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		content, err := json.Marshal(reply)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test-model",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			APIKey:        "sk-test",
			BaseURL:       baseURL + "/v1",
			Model:         "test-model",
			ProjectPrompt: "make a project",
		},
	}
}

func TestClientComplete(t *testing.T) {
	t.Run("SendsHistoryReturnsReply", func(t *testing.T) {
		var seen chatRequest
		srv := newCompletionServer(t, "```python\nprint(1)\n```", &seen)
		client := NewClient(zaptest.NewLogger(t), testConfig(srv.URL))

		reply, err := client.Complete(context.Background(), []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "build a calculator"},
		})
		require.NoError(t, err)
		assert.Equal(t, "```python\nprint(1)\n```", reply)

		assert.Equal(t, "test-model", seen.Model)
		require.Len(t, seen.Messages, 2)
		assert.Equal(t, Message{Role: "user", Content: "build a calculator"}, seen.Messages[1])
		assert.Nil(t, seen.ResponseFormat)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:0")
		cfg.LLM.APIKey = ""
		client := NewClient(zaptest.NewLogger(t), cfg)

		_, err := client.Complete(context.Background(), nil)
		require.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("ServerError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
		}))
		t.Cleanup(srv.Close)
		client := NewClient(zaptest.NewLogger(t), testConfig(srv.URL))

		_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat completion failed")
	})
}

func TestClientGenerateProject(t *testing.T) {
	t.Run("DecodesProject", func(t *testing.T) {
		var seen chatRequest
		doc := `{"project_name":"Visit Card","files":{"app.py":"print(1)","Dockerfile":"FROM python:3.11"}}`
		srv := newCompletionServer(t, doc, &seen)
		client := NewClient(zaptest.NewLogger(t), testConfig(srv.URL))

		project, err := client.GenerateProject(context.Background(), "a business card site")
		require.NoError(t, err)
		assert.Equal(t, "visit-card", project.Name)
		assert.Equal(t, []string{"Dockerfile", "app.py"}, project.FileNames())

		require.NotNil(t, seen.ResponseFormat)
		assert.Equal(t, "json_object", seen.ResponseFormat.Type)
		require.Len(t, seen.Messages, 2)
		assert.Equal(t, "make a project", seen.Messages[0].Content)
	})

	t.Run("RejectsInvalidJSON", func(t *testing.T) {
		srv := newCompletionServer(t, "not json", nil)
		client := NewClient(zaptest.NewLogger(t), testConfig(srv.URL))

		_, err := client.GenerateProject(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid project JSON")
	})
}

func TestProjectValidate(t *testing.T) {
	tests := []struct {
		name    string
		project Project
		errMsg  string
	}{
		{"Valid", Project{Name: "shop", Files: map[string]string{"app.py": "x", ".github/ci.yml": "y"}}, ""},
		{"BadName", Project{Name: "Bad Name!", Files: map[string]string{"a": "b"}}, "invalid project name"},
		{"NoFiles", Project{Name: "shop"}, "has no files"},
		{"Traversal", Project{Name: "shop", Files: map[string]string{"../etc/passwd": "x"}}, "unsafe file path"},
		{"Absolute", Project{Name: "shop", Files: map[string]string{"/etc/passwd": "x"}}, "unsafe file path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.project.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNormalizeProjectName(t *testing.T) {
	assert.Equal(t, "my-cool-app", NormalizeProjectName(" My Cool_App "))
	assert.Equal(t, "shop", NormalizeProjectName("shop"))
}
