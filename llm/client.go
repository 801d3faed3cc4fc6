package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm: api key is not configured")

// Roles used in a conversation history.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the next assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, history []Message) (string, error)
}

// ProjectGenerator produces a deployable multi-file project from a description.
type ProjectGenerator interface {
	GenerateProject(ctx context.Context, prompt string) (*Project, error)
}

// Client implements Completer and ProjectGenerator on an OpenAI-compatible API
type Client struct {
	api           *openai.Client
	model         string
	projectPrompt string
	configured    bool
	logger        *zap.Logger
}

// NewClient creates a Client from the llm configuration section.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	apiConfig := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		apiConfig.BaseURL = cfg.LLM.BaseURL
	}

	return &Client{
		api:           openai.NewClientWithConfig(apiConfig),
		model:         cfg.LLM.Model,
		projectPrompt: cfg.LLM.ProjectPrompt,
		configured:    cfg.LLM.APIKey != "",
		logger:        logger,
	}
}

// Complete sends the whole history and returns the assistant's reply text.
func (c *Client) Complete(ctx context.Context, history []Message) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	c.logger.Debug("requesting chat completion", zap.String("model", c.model), zap.Int("messages", len(messages)))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateProject asks for a JSON project description and decodes it.
func (c *Client) GenerateProject(ctx context.Context, prompt string) (*Project, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: RoleSystem, Content: c.projectPrompt},
			{Role: RoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("project generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("project generation returned no choices")
	}

	return ParseProject(resp.Choices[0].Message.Content)
}

// ParseProject decodes and validates a project JSON document.
func ParseProject(raw string) (*Project, error) {
	var p Project
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return nil, fmt.Errorf("invalid project JSON: %w", err)
	}
	p.Name = NormalizeProjectName(p.Name)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
