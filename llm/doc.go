// Package llm talks to the chat completion backend and turns its replies
// into runnable artifacts.
//
// Client wraps an OpenAI-compatible API. ExtractCode pulls the generated
// source out of a markdown reply, and EnsureBind rewrites the app's listen
// call so the preview always binds the sandbox host and port.
package llm
