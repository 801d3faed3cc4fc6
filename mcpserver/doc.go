// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the builder bot as MCP tools using the
// mark3labs/mcp-go library: chat drives the model and the live preview,
// the preview_* tools control and inspect the preview process, and
// deploy_project publishes a full project to GitHub.
//
// Every session-scoped tool accepts an optional session_id and falls back to
// the default session. The server supports both stdio and HTTP transports as
// configured by the application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sessions, publisher)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
