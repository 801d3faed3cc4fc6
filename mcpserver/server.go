package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/deploy"
	"github.com/isdmx/builderbot/session"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// Deployer publishes a generated project.
type Deployer interface {
	Deploy(ctx context.Context, prompt string) (*deploy.Result, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	sessions   *session.Manager
	deployer   Deployer
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sessions *session.Manager, deployer Deployer) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		sessions: sessions,
		deployer: deployer,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("server.status_port", s.config.Server.StatusPort),
		zap.String("sandbox.dir", s.config.Sandbox.Dir),
		zap.String("sandbox.language", s.config.Sandbox.Language),
		zap.Int("sandbox.port", s.config.Sandbox.Port),
		zap.Int("sandbox.max_sessions", s.config.Sandbox.MaxSessions),
		zap.Int("sandbox.log_lines", s.config.Sandbox.LogLines),
		zap.Bool("sandbox.process_group", s.config.Sandbox.ProcessGroup),
		zap.String("llm.model", s.config.LLM.Model),
		zap.Bool("llm.configured", s.config.LLM.APIKey != ""),
		zap.String("github.org", s.config.GitHub.Org),
		zap.Bool("deploy.enabled", s.config.DeployEnabled()),
	)

	s.mcpServer = server.NewMCPServer("builderbot", Version, server.WithToolCapabilities(false))
	s.registerTools()

	// Built up front so Shutdown sees it even if ServeHTTP never ran.
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer, server.WithStreamableHTTPServer(httpSrv))
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.httpServer)
	httpSrv.Handler = mux

	return s, nil
}

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Description("Session to use; the default session when omitted"),
	)
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Send a message to the builder; code in the reply replaces the app and restarts the live preview"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What to build or change")),
		sessionArg(),
	), s.handleChat)

	s.mcpServer.AddTool(mcp.NewTool("preview_start",
		mcp.WithDescription("Start or restart the live preview"),
		mcp.WithString("code", mcp.Description("Source to run; the current app when omitted")),
		sessionArg(),
	), s.handlePreviewStart)

	s.mcpServer.AddTool(mcp.NewTool("preview_stop",
		mcp.WithDescription("Stop the live preview"),
		sessionArg(),
	), s.handlePreviewStop)

	s.mcpServer.AddTool(mcp.NewTool("preview_status",
		mcp.WithDescription("Report whether the preview is running, its pid and address"),
		sessionArg(),
	), s.handlePreviewStatus)

	s.mcpServer.AddTool(mcp.NewTool("preview_logs",
		mcp.WithDescription("Return recent output of the preview process"),
		mcp.WithNumber("tail", mcp.Description("Only the last N lines")),
		sessionArg(),
	), s.handlePreviewLogs)

	s.mcpServer.AddTool(mcp.NewTool("preview_clear_logs",
		mcp.WithDescription("Discard captured preview output"),
		sessionArg(),
	), s.handlePreviewClearLogs)

	s.mcpServer.AddTool(mcp.NewTool("session_close",
		mcp.WithDescription("Stop the session's preview and forget its conversation, freeing its preview port"),
		sessionArg(),
	), s.handleSessionClose)

	s.mcpServer.AddTool(mcp.NewTool("deploy_project",
		mcp.WithDescription("Generate a full project, publish it to the GitHub organization and add it to the infra stack"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Description of the service")),
	), s.handleDeployProject)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) resolve(request mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	sess, err := s.sessions.Resolve(request.GetString("session_id", ""))
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return sess, nil
}

type chatResult struct {
	*session.Reply
	PreviewError string `json:"preview_error,omitempty"`
}

func (s *MCPServer) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("prompt parameter is required"), nil
	}
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}

	s.logger.Info("chat requested", zap.String("session_id", sess.ID), zap.Int("prompt_len", len(prompt)))

	reply, err := sess.Send(ctx, prompt)
	if reply == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Chat failed: %v", err)), nil
	}

	out := chatResult{Reply: reply}
	if err != nil {
		out.PreviewError = err.Error()
	}
	return jsonResult(out)
}

func (s *MCPServer) handlePreviewStart(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}

	if err := sess.StartPreview(request.GetString("code", "")); err != nil {
		if errors.Is(err, session.ErrNoCodeBlock) {
			return mcp.NewToolResultError("No code yet: send a chat message first or pass code"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Preview failed to start: %v", err)), nil
	}
	return jsonResult(sess.Summary())
}

func (s *MCPServer) handlePreviewStop(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}

	sess.Preview().Stop()
	return jsonResult(sess.Summary())
}

func (s *MCPServer) handlePreviewStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(sess.Summary())
}

func (s *MCPServer) handlePreviewLogs(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}

	lines := sess.Preview().Logs()
	if tail := request.GetInt("tail", 0); tail > 0 && tail < len(lines) {
		lines = lines[len(lines)-tail:]
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *MCPServer) handlePreviewClearLogs(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.resolve(request)
	if errResult != nil {
		return errResult, nil
	}

	sess.Preview().ClearLogs()
	return mcp.NewToolResultText("Logs cleared"), nil
}

func (s *MCPServer) handleSessionClose(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.sessions.Lookup(request.GetString("session_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sessions.Close(sess.ID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s closed", sess.ID)), nil
}

func (s *MCPServer) handleDeployProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("prompt parameter is required"), nil
	}

	s.logger.Info("deployment requested", zap.Int("prompt_len", len(prompt)))

	result, err := s.deployer.Deploy(ctx, prompt)
	if err != nil {
		s.logger.Error("deployment failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Deployment failed: %v", err)), nil
	}
	return jsonResult(result)
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	err := s.httpServer.Start(fmt.Sprintf(":%d", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP transport. Called before ServeHTTP, it makes a
// later ServeHTTP return at once.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
