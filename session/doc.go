// Package session holds chat conversations and the preview each one drives.
//
// A Session keeps the model conversation, the current generated artifact and
// its own sandbox.Preview. Every turn that yields a fenced code block replaces
// the artifact and restarts the preview; a turn without one leaves the running
// preview untouched. The Manager hands out sessions, each with a private
// sandbox subdirectory and port, and stops every preview on shutdown.
//
// Usage:
//
//	mgr := session.NewManager(logger, cfg, completer, metrics)
//	reply, err := mgr.Default().Send(ctx, "build a todo list")
//	defer mgr.CloseAll()
package session
