package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
)

// ErrNotFound is returned when a repository, file or owner does not exist.
var ErrNotFound = errors.New("deploy: not found")

// File is a file stored in a hosted repository.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Forge is the subset of a code hosting API the publisher needs.
type Forge interface {
	OwnerType(ctx context.Context, owner string) (string, error)
	EnsureRepository(ctx context.Context, owner, name string) (htmlURL string, created bool, err error)
	GetFile(ctx context.Context, owner, repo, path string) (*File, error)
	CreateFile(ctx context.Context, owner, repo, path string, content []byte, message string) error
	UpdateFile(ctx context.Context, owner, repo, path string, content []byte, message, sha string) error
}

// GitHubForge implements Forge on the GitHub REST API
type GitHubForge struct {
	client *github.Client
	logger *zap.Logger
}

// NewGitHubForge creates a GitHubForge authenticated with the configured token.
// A non-empty github.base_url targets a GitHub Enterprise server.
func NewGitHubForge(logger *zap.Logger, cfg *config.Config) (*GitHubForge, error) {
	client := github.NewClient(nil)
	if cfg.GitHub.Token != "" {
		client = client.WithAuthToken(cfg.GitHub.Token)
	}
	if cfg.GitHub.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.GitHub.BaseURL, cfg.GitHub.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github.base_url: %w", err)
		}
	}
	return &GitHubForge{client: client, logger: logger}, nil
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// OwnerType returns the account type of an organization login, "Organization"
// for real organizations.
func (f *GitHubForge) OwnerType(ctx context.Context, owner string) (string, error) {
	org, resp, err := f.client.Organizations.Get(ctx, owner)
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("%w: organization %s", ErrNotFound, owner)
		}
		return "", fmt.Errorf("failed to get organization %s: %w", owner, err)
	}
	return org.GetType(), nil
}

// EnsureRepository returns the repository owner/name, creating it as a
// private repository when it does not exist.
func (f *GitHubForge) EnsureRepository(ctx context.Context, owner, name string) (string, bool, error) {
	repo, resp, err := f.client.Repositories.Get(ctx, owner, name)
	if err == nil {
		return repo.GetHTMLURL(), false, nil
	}
	if !isNotFound(resp, err) {
		return "", false, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}

	repo, _, err = f.client.Repositories.Create(ctx, owner, &github.Repository{
		Name:    github.String(name),
		Private: github.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to create repository %s/%s: %w", owner, name, err)
	}
	f.logger.Info("repository created", zap.String("owner", owner), zap.String("repo", name))
	return repo.GetHTMLURL(), true, nil
}

// GetFile fetches and decodes one file.
func (f *GitHubForge) GetFile(ctx context.Context, owner, repo, path string) (*File, error) {
	content, _, resp, err := f.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if isNotFound(resp, err) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, owner, repo, path)
		}
		return nil, fmt.Errorf("failed to get %s from %s/%s: %w", path, owner, repo, err)
	}
	if content == nil {
		return nil, fmt.Errorf("%s in %s/%s is a directory", path, owner, repo)
	}

	text, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &File{Path: content.GetPath(), SHA: content.GetSHA(), Content: []byte(text)}, nil
}

// CreateFile commits a new file at path.
func (f *GitHubForge) CreateFile(ctx context.Context, owner, repo, path string, content []byte, message string) error {
	_, _, err := f.client.Repositories.CreateFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s in %s/%s: %w", path, owner, repo, err)
	}
	return nil
}

// UpdateFile commits new content over the blob identified by sha.
func (f *GitHubForge) UpdateFile(ctx context.Context, owner, repo, path string, content []byte, message, sha string) error {
	_, _, err := f.client.Repositories.UpdateFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		SHA:     github.String(sha),
	})
	if err != nil {
		return fmt.Errorf("failed to update %s in %s/%s: %w", path, owner, repo, err)
	}
	return nil
}
