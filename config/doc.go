// Package config provides application configuration management.
//
// The config package loads the builder bot configuration from an optional
// config.yaml, a .env file and the environment. It covers the MCP server
// transport, logging, the preview sandbox, the chat completion backend and
// the GitHub settings used to publish generated projects.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Preview port: %d\n", cfg.Sandbox.Port)
package config
