package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/metrics"
)

// ErrNotOrganization is returned when the configured owner is a user account.
var ErrNotOrganization = errors.New("deploy: owner is not an organization")

// Outcome is the result of wiring a service into the infra manifest.
type Outcome string

const (
	OutcomeAdded  Outcome = "added"
	OutcomeExists Outcome = "exists"
	OutcomeFailed Outcome = "failed"
)

// Result summarizes one deployment.
type Result struct {
	Project    string   `json:"project"`
	RepoURL    string   `json:"repo_url"`
	Created    bool     `json:"created"`
	Files      []string `json:"files"`
	Infra      Outcome  `json:"infra"`
	InfraError string   `json:"infra_error,omitempty"`
	PublicURL  string   `json:"public_url,omitempty"`
}

// Publisher turns a project description into a published repository and a
// compose service in the infra repository.
type Publisher struct {
	forge     Forge
	generator llm.ProjectGenerator
	config    config.GitHubConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewPublisher creates a Publisher for the configured organization.
func NewPublisher(logger *zap.Logger, cfg *config.Config, forge Forge, generator llm.ProjectGenerator, m *metrics.Metrics) *Publisher {
	return &Publisher{
		forge:     forge,
		generator: generator,
		config:    cfg.GitHub,
		logger:    logger.Named("deploy"),
		metrics:   m,
	}
}

// owner is the lowercase account name used in image references.
func (p *Publisher) owner() string {
	return strings.ToLower(p.config.Org)
}

// Verify checks that the configured owner is an organization the token can see.
func (p *Publisher) Verify(ctx context.Context) error {
	if p.config.Org == "" {
		return errors.New("github.org is not configured")
	}
	kind, err := p.forge.OwnerType(ctx, p.config.Org)
	if err != nil {
		return fmt.Errorf("cannot access organization %s: %w", p.config.Org, err)
	}
	if kind != "Organization" {
		return fmt.Errorf("%w: %s is %q", ErrNotOrganization, p.config.Org, kind)
	}
	return nil
}

// Deploy generates a project from prompt, publishes it and wires it into the
// infra manifest. An infra failure is reported in the result; the repository
// stays published.
func (p *Publisher) Deploy(ctx context.Context, prompt string) (*Result, error) {
	if err := p.Verify(ctx); err != nil {
		p.metrics.Deployment(string(OutcomeFailed))
		return nil, err
	}

	project, err := p.generator.GenerateProject(ctx, prompt)
	if err != nil {
		p.metrics.Deployment(string(OutcomeFailed))
		return nil, fmt.Errorf("failed to generate project: %w", err)
	}
	p.logger.Info("project generated", zap.String("project", project.Name), zap.Int("files", len(project.Files)))

	result, err := p.Publish(ctx, project)
	if err != nil {
		p.metrics.Deployment(string(OutcomeFailed))
		return nil, err
	}

	result.Infra, err = p.WireInfra(ctx, project.Name)
	if err != nil {
		result.Infra = OutcomeFailed
		result.InfraError = err.Error()
		p.logger.Error("infra wiring failed", zap.String("project", project.Name), zap.Error(err))
	}
	p.metrics.Deployment(string(result.Infra))

	return result, nil
}

// Publish pushes project and its build workflow to owner/project.Name,
// creating the private repository if needed. Files are written in sorted
// order; unchanged files are skipped.
func (p *Publisher) Publish(ctx context.Context, project *llm.Project) (*Result, error) {
	if err := project.Validate(); err != nil {
		return nil, err
	}

	url, created, err := p.forge.EnsureRepository(ctx, p.config.Org, project.Name)
	if err != nil {
		return nil, err
	}
	if !created {
		p.logger.Warn("repository exists, overwriting files", zap.String("repo", project.Name))
	}

	workflow, err := BuildWorkflow(p.owner(), project.Name, p.config.Registry)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(project.Files)+1)
	for name, content := range project.Files {
		files[name] = content
	}
	files[WorkflowPath] = string(workflow)
	all := &llm.Project{Name: project.Name, Files: files}

	for _, name := range all.FileNames() {
		if err := p.upsert(ctx, project.Name, name, []byte(files[name])); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Project: project.Name,
		RepoURL: url,
		Created: created,
		Files:   all.FileNames(),
	}
	if p.config.PublicDomain != "" {
		result.PublicURL = fmt.Sprintf("https://%s.%s", project.Name, p.config.PublicDomain)
	}
	p.logger.Info("project published", zap.String("repo", url), zap.Bool("created", created))
	return result, nil
}

func (p *Publisher) upsert(ctx context.Context, repo, path string, content []byte) error {
	existing, err := p.forge.GetFile(ctx, p.config.Org, repo, path)
	switch {
	case errors.Is(err, ErrNotFound):
		return p.forge.CreateFile(ctx, p.config.Org, repo, path, content, "Init "+path)
	case err != nil:
		return err
	case bytes.Equal(existing.Content, content):
		return nil
	default:
		return p.forge.UpdateFile(ctx, p.config.Org, repo, path, content, "Update "+path, existing.SHA)
	}
}

// WireInfra adds the service for project name to the compose manifest of the
// infra repository.
func (p *Publisher) WireInfra(ctx context.Context, name string) (Outcome, error) {
	manifest, err := p.forge.GetFile(ctx, p.config.Org, p.config.InfraRepo, p.config.ManifestPath)
	if err != nil {
		return OutcomeFailed, err
	}

	patched, added, err := PatchCompose(manifest.Content, ServiceSpec{
		Name:          name,
		Owner:         p.owner(),
		Image:         ImageName(p.config.Registry, p.owner(), name),
		Network:       p.config.Network,
		ContainerPort: p.config.ContainerPort,
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if !added {
		p.logger.Info("service already in infra manifest", zap.String("service", name))
		return OutcomeExists, nil
	}

	if err := p.forge.UpdateFile(ctx, p.config.Org, p.config.InfraRepo, manifest.Path, patched, "Add service "+name, manifest.SHA); err != nil {
		return OutcomeFailed, err
	}
	p.logger.Info("service added to infra manifest", zap.String("service", name), zap.String("repo", p.config.InfraRepo))
	return OutcomeAdded, nil
}
