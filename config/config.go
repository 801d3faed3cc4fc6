package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSystemPrompt instructs the model to always answer with one complete,
// previewable Flask application.
const DefaultSystemPrompt = `You are a Python/Flask expert building web application prototypes.
RULES:
1. ALWAYS generate the complete app.py file using the Flask framework.
2. The application MUST listen on port 5000 (app.run(host='0.0.0.0', port=5000)).
3. Do not use debug=True or the reloader, it blocks the subprocess.
4. Answer briefly. Put the code in a ` + "```python" + ` block.
5. If the user asks for a change, generate the WHOLE corrected app.py again.`

// DefaultProjectPrompt asks the model for a deployable multi-file project as JSON.
const DefaultProjectPrompt = `You are a DevOps and Python expert building web microservices.
Generate complete application code from the description.
You MUST answer ONLY with a plain JSON object of the form:
{
  "project_name": "short-name-lowercase-without-spaces",
  "files": {
    "app.py": "application code...",
    "requirements.txt": "libraries...",
    "Dockerfile": "docker instructions...",
    "README.md": "description..."
  }
}
RULES:
1. The Dockerfile MUST be valid and expose port 80.
2. Keep the code simple and working.
3. The JSON must be valid.`

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Preview PreviewConfig `mapstructure:"preview"`
	LLM     LLMConfig     `mapstructure:"llm"`
	GitHub  GitHubConfig  `mapstructure:"github"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport  string `mapstructure:"transport"`
	HTTPPort   int    `mapstructure:"http_port"`
	StatusPort int    `mapstructure:"status_port"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds the preview sandbox configuration
type SandboxConfig struct {
	Dir            string `mapstructure:"dir"`
	Language       string `mapstructure:"language"`
	Interpreter    string `mapstructure:"interpreter"`
	BindHost       string `mapstructure:"bind_host"`
	Port           int    `mapstructure:"port"`
	MaxSessions    int    `mapstructure:"max_sessions"`
	LogLines       int    `mapstructure:"log_lines"`
	LogFile        bool   `mapstructure:"log_file"`
	StopTimeoutSec int    `mapstructure:"stop_timeout_sec"`
	ProcessGroup   bool   `mapstructure:"process_group"`
}

// PreviewConfig describes where users reach the running preview
type PreviewConfig struct {
	URL string `mapstructure:"url"`
}

// LLMConfig holds chat completion settings
type LLMConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	SystemPrompt  string `mapstructure:"system_prompt"`
	ProjectPrompt string `mapstructure:"project_prompt"`
}

// GitHubConfig holds settings for publishing generated projects
type GitHubConfig struct {
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	BaseURL       string `mapstructure:"base_url"`
	InfraRepo     string `mapstructure:"infra_repo"`
	ManifestPath  string `mapstructure:"manifest_path"`
	Registry      string `mapstructure:"registry"`
	Network       string `mapstructure:"network"`
	ContainerPort int    `mapstructure:"container_port"`
	PublicDomain  string `mapstructure:"public_domain"`
}

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.:\[\]-]+$`)

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load(".", "./config")
}

// Load reads config.yaml from the first matching search path, falling back to
// defaults and environment variables when no file exists.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("BUILDERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by existing deployments of the bot.
	_ = v.BindEnv("llm.api_key", "BUILDERBOT_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("github.token", "BUILDERBOT_GITHUB_TOKEN", "GH_TOKEN")
	_ = v.BindEnv("github.org", "BUILDERBOT_GITHUB_ORG", "GITHUB_ORG_NAME")
	_ = v.BindEnv("preview.url", "BUILDERBOT_PREVIEW_URL", "PREVIEW_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.status_port", 0)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("sandbox.dir", "sandbox")
	v.SetDefault("sandbox.language", "python")
	v.SetDefault("sandbox.interpreter", "")
	v.SetDefault("sandbox.bind_host", "0.0.0.0")
	v.SetDefault("sandbox.port", 5000)
	v.SetDefault("sandbox.max_sessions", 4)
	v.SetDefault("sandbox.log_lines", 100)
	v.SetDefault("sandbox.log_file", false)
	v.SetDefault("sandbox.stop_timeout_sec", 2)
	v.SetDefault("sandbox.process_group", true)

	v.SetDefault("preview.url", "http://localhost:5000")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4-turbo-preview")
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm.project_prompt", DefaultProjectPrompt)

	v.SetDefault("github.token", "")
	v.SetDefault("github.org", "")
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.infra_repo", "homelab-infra")
	v.SetDefault("github.manifest_path", "docker-compose.yml")
	v.SetDefault("github.registry", "ghcr.io")
	v.SetDefault("github.network", "siec")
	v.SetDefault("github.container_port", 80)
	v.SetDefault("github.public_domain", "")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.StatusPort < 0 || c.Server.StatusPort > 65535 {
		return fmt.Errorf("invalid server.status_port: %d", c.Server.StatusPort)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Sandbox.Dir == "" {
		return fmt.Errorf("sandbox.dir must not be empty")
	}

	supportedLanguages := map[string]bool{
		"python": true,
		"nodejs": true,
		"shell":  true,
	}
	if !supportedLanguages[c.Sandbox.Language] {
		return fmt.Errorf("unsupported sandbox.language: %s", c.Sandbox.Language)
	}

	if !hostPattern.MatchString(c.Sandbox.BindHost) {
		return fmt.Errorf("invalid sandbox.bind_host: %q", c.Sandbox.BindHost)
	}

	if c.Sandbox.Port <= 0 || c.Sandbox.Port > 65535 {
		return fmt.Errorf("sandbox.port must be a valid TCP port, got: %d", c.Sandbox.Port)
	}

	if c.Sandbox.MaxSessions <= 0 {
		return fmt.Errorf("sandbox.max_sessions must be positive, got: %d", c.Sandbox.MaxSessions)
	}

	if c.Sandbox.Port+c.Sandbox.MaxSessions-1 > 65535 {
		return fmt.Errorf("sandbox.port range exceeds 65535: %d+%d", c.Sandbox.Port, c.Sandbox.MaxSessions)
	}

	if c.Sandbox.LogLines <= 0 {
		return fmt.Errorf("sandbox.log_lines must be positive, got: %d", c.Sandbox.LogLines)
	}

	if c.Sandbox.StopTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.stop_timeout_sec must be positive, got: %d", c.Sandbox.StopTimeoutSec)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}

	if c.GitHub.ContainerPort <= 0 || c.GitHub.ContainerPort > 65535 {
		return fmt.Errorf("github.container_port must be a valid TCP port, got: %d", c.GitHub.ContainerPort)
	}

	return nil
}

// GetStopTimeout returns the graceful termination window as a duration
func (c *Config) GetStopTimeout() time.Duration {
	return time.Duration(c.Sandbox.StopTimeoutSec) * time.Second
}

// DeployEnabled reports whether enough GitHub settings are present to publish projects.
func (c *Config) DeployEnabled() bool {
	return c.GitHub.Token != "" && c.GitHub.Org != ""
}
