package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/deploy"
	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/sandbox"
	"github.com/isdmx/builderbot/session"
)

type scriptedCompleter struct {
	replies []string
}

func (c *scriptedCompleter) Complete(_ context.Context, _ []llm.Message) (string, error) {
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

type recordingPreview struct {
	mu      sync.Mutex
	running bool
	source  string
}

func (p *recordingPreview) Start(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running, p.source = true, source
	return nil
}

func (p *recordingPreview) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}

func (p *recordingPreview) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *recordingPreview) Logs() []string { return []string{"boot ok"} }

func (p *recordingPreview) ClearLogs() {}

func (p *recordingPreview) Status() sandbox.Status {
	return sandbox.Status{Running: p.IsRunning(), PID: 42}
}

func (p *recordingPreview) Source() string { return p.source }

func runREPL(t *testing.T, input string, replies ...string) (string, *recordingPreview) {
	t.Helper()
	preview := &recordingPreview{}
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{Dir: t.TempDir(), Language: "python", BindHost: "0.0.0.0", Port: 5000, MaxSessions: 1},
		Preview: config.PreviewConfig{URL: "http://localhost:5000"},
	}
	mgr := session.NewManager(zaptest.NewLogger(t), cfg, &scriptedCompleter{replies: replies}, nil,
		session.WithPreviewFactory(func(_ *zap.Logger, _ string, _ int) sandbox.Preview { return preview }))
	t.Cleanup(mgr.CloseAll)
	sess, err := mgr.Default()
	require.NoError(t, err)

	var out bytes.Buffer
	r := &repl{
		in:      strings.NewReader(input),
		out:     &out,
		session: sess,
		render:  func(s string) string { return s },
	}
	require.NoError(t, r.run(context.Background()))
	return out.String(), preview
}

func TestREPL(t *testing.T) {
	t.Run("ChatRestartsPreview", func(t *testing.T) {
		out, preview := runREPL(t, "hello page\n/status\n/code\n/quit\n",
			"```python\nprint('hi')\n```")

		assert.Contains(t, out, "preview restarted at http://localhost:5000")
		assert.Contains(t, out, "running (pid 42) at http://localhost:5000")
		assert.Contains(t, out, "print('hi')")
		assert.Equal(t, "print('hi')\n", preview.source)
	})

	t.Run("ReplyWithoutCode", func(t *testing.T) {
		out, preview := runREPL(t, "what can you do?\n", "I build Flask apps.")

		assert.Contains(t, out, "I build Flask apps.")
		assert.NotContains(t, out, "preview restarted")
		assert.False(t, preview.IsRunning())
	})

	t.Run("Commands", func(t *testing.T) {
		out, _ := runREPL(t, "/code\n/logs\n/stop\n/clear\n/reset\n/bogus\n/help\n")

		assert.Contains(t, out, "(no code yet)")
		assert.Contains(t, out, "boot ok")
		assert.Contains(t, out, "preview stopped")
		assert.Contains(t, out, "logs cleared")
		assert.Contains(t, out, "conversation reset")
		assert.Contains(t, out, "unknown command /bogus")
		assert.Contains(t, out, "/quit")
	})
}

func TestREPLInterrupted(t *testing.T) {
	preview := &recordingPreview{}
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{Dir: t.TempDir(), Language: "python", Port: 5000, MaxSessions: 1},
	}
	mgr := session.NewManager(zaptest.NewLogger(t), cfg, &scriptedCompleter{}, nil,
		session.WithPreviewFactory(func(_ *zap.Logger, _ string, _ int) sandbox.Preview { return preview }))
	t.Cleanup(mgr.CloseAll)
	sess, err := mgr.Default()
	require.NoError(t, err)

	// Stdin that never delivers a line, like an idle terminal.
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	var out bytes.Buffer
	r := &repl{in: in, out: &out, session: sess, render: func(s string) string { return s }}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chat loop ignored cancellation")
	}
	assert.Contains(t, out.String(), "interrupted")
}

func TestPrintResult(t *testing.T) {
	result := &deploy.Result{
		Project:   "shop",
		RepoURL:   "https://github.com/acme/shop",
		Created:   true,
		Files:     []string{"Dockerfile", "app.py"},
		Infra:     deploy.OutcomeExists,
		PublicURL: "https://shop.example.com",
	}

	var text bytes.Buffer
	require.NoError(t, printResult(&text, result, false))
	assert.Equal(t, "Repository created: https://github.com/acme/shop\n"+
		"Files: Dockerfile, app.py\n"+
		"Infra: service already present\n"+
		"Address: https://shop.example.com\n", text.String())

	var js bytes.Buffer
	require.NoError(t, printResult(&js, result, true))
	assert.Contains(t, js.String(), `"repo_url": "https://github.com/acme/shop"`)
}
