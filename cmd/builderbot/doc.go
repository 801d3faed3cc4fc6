// Package main is the entry point for builderbot.
//
// builderbot turns chat prompts into small web applications. The serve
// command exposes the bot as an MCP server (stdio or HTTP) with an optional
// status API; chat is an interactive terminal session with a live preview;
// deploy publishes a generated project to a GitHub organization and wires it
// into the infra compose stack.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, zap for structured logging, viper for configuration
// and cobra for the command line.
package main
