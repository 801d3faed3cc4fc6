// Package httpapi serves a small read-mostly status API next to the MCP
// server: health, Prometheus metrics, sessions and their preview state.
//
// The literal session id "default" addresses the default session.
package httpapi
