package deploy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/metrics"
)

type commit struct {
	repo    string
	path    string
	message string
}

// fakeForge keeps repositories and files in memory.
type fakeForge struct {
	ownerType string
	ownerErr  error
	repos     map[string]bool
	files     map[string]*File
	commits   []commit
	updateErr error
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		ownerType: "Organization",
		repos:     map[string]bool{},
		files:     map[string]*File{},
	}
}

func fileKey(owner, repo, path string) string {
	return owner + "/" + repo + "/" + path
}

func (f *fakeForge) OwnerType(_ context.Context, _ string) (string, error) {
	return f.ownerType, f.ownerErr
}

func (f *fakeForge) EnsureRepository(_ context.Context, owner, name string) (string, bool, error) {
	key := owner + "/" + name
	created := !f.repos[key]
	f.repos[key] = true
	return "https://github.com/" + key, created, nil
}

func (f *fakeForge) GetFile(_ context.Context, owner, repo, path string) (*File, error) {
	file, ok := f.files[fileKey(owner, repo, path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return file, nil
}

func (f *fakeForge) CreateFile(_ context.Context, owner, repo, path string, content []byte, message string) error {
	f.files[fileKey(owner, repo, path)] = &File{Path: path, SHA: fmt.Sprintf("sha-%d", len(f.commits)), Content: content}
	f.commits = append(f.commits, commit{repo: repo, path: path, message: message})
	return nil
}

func (f *fakeForge) UpdateFile(_ context.Context, owner, repo, path string, content []byte, message, sha string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.files[fileKey(owner, repo, path)]
	if !ok || existing.SHA != sha {
		return errors.New("sha mismatch")
	}
	f.files[fileKey(owner, repo, path)] = &File{Path: path, SHA: fmt.Sprintf("sha-%d", len(f.commits)), Content: content}
	f.commits = append(f.commits, commit{repo: repo, path: path, message: message})
	return nil
}

type fakeGenerator struct {
	project *llm.Project
	err     error
}

func (g *fakeGenerator) GenerateProject(_ context.Context, _ string) (*llm.Project, error) {
	return g.project, g.err
}

func testPublisher(t *testing.T, forge Forge, gen llm.ProjectGenerator) *Publisher {
	t.Helper()
	cfg := &config.Config{
		GitHub: config.GitHubConfig{
			Token:         "t",
			Org:           "Acme",
			InfraRepo:     "homelab-infra",
			ManifestPath:  "docker-compose.yml",
			Registry:      "ghcr.io",
			Network:       "siec",
			ContainerPort: 80,
			PublicDomain:  "example.com",
		},
	}
	return NewPublisher(zaptest.NewLogger(t), cfg, forge, gen, metrics.New(prometheus.NewRegistry()))
}

func shopProject() *llm.Project {
	return &llm.Project{
		Name: "shop",
		Files: map[string]string{
			"app.py":           "print('shop')",
			"requirements.txt": "flask",
			"Dockerfile":       "FROM python:3.11\nEXPOSE 80",
		},
	}
}

func TestPublisherVerify(t *testing.T) {
	t.Run("Organization", func(t *testing.T) {
		require.NoError(t, testPublisher(t, newFakeForge(), nil).Verify(context.Background()))
	})

	t.Run("UserAccount", func(t *testing.T) {
		forge := newFakeForge()
		forge.ownerType = "User"
		err := testPublisher(t, forge, nil).Verify(context.Background())
		require.ErrorIs(t, err, ErrNotOrganization)
	})

	t.Run("Inaccessible", func(t *testing.T) {
		forge := newFakeForge()
		forge.ownerErr = ErrNotFound
		err := testPublisher(t, forge, nil).Verify(context.Background())
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPublisherPublish(t *testing.T) {
	t.Run("CreatesRepositoryAndFiles", func(t *testing.T) {
		forge := newFakeForge()
		pub := testPublisher(t, forge, nil)

		result, err := pub.Publish(context.Background(), shopProject())
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, "https://github.com/Acme/shop", result.RepoURL)
		assert.Equal(t, "https://shop.example.com", result.PublicURL)

		want := []commit{
			{"shop", ".github/workflows/deploy.yml", "Init .github/workflows/deploy.yml"},
			{"shop", "Dockerfile", "Init Dockerfile"},
			{"shop", "app.py", "Init app.py"},
			{"shop", "requirements.txt", "Init requirements.txt"},
		}
		assert.Equal(t, want, forge.commits)

		wf := forge.files[fileKey("Acme", "shop", WorkflowPath)]
		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(wf.Content, &doc))
		assert.Equal(t, "acme/shop", doc["env"].(map[string]any)["IMAGE_NAME"])
	})

	t.Run("UpdatesChangedFilesOnly", func(t *testing.T) {
		forge := newFakeForge()
		pub := testPublisher(t, forge, nil)

		_, err := pub.Publish(context.Background(), shopProject())
		require.NoError(t, err)
		forge.commits = nil

		project := shopProject()
		project.Files["app.py"] = "print('shop v2')"
		result, err := pub.Publish(context.Background(), project)
		require.NoError(t, err)
		assert.False(t, result.Created)
		assert.Equal(t, []commit{{"shop", "app.py", "Update app.py"}}, forge.commits)
	})

	t.Run("RejectsInvalidProject", func(t *testing.T) {
		forge := newFakeForge()
		_, err := testPublisher(t, forge, nil).Publish(context.Background(), &llm.Project{Name: "shop"})
		require.Error(t, err)
		assert.Empty(t, forge.repos)
	})
}

func TestPublisherWireInfra(t *testing.T) {
	seed := func(forge *fakeForge) {
		forge.files[fileKey("Acme", "homelab-infra", "docker-compose.yml")] = &File{
			Path: "docker-compose.yml", SHA: "base", Content: []byte(infraManifest),
		}
	}

	t.Run("AddsService", func(t *testing.T) {
		forge := newFakeForge()
		seed(forge)

		outcome, err := testPublisher(t, forge, nil).WireInfra(context.Background(), "shop")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAdded, outcome)
		assert.Equal(t, []commit{{"homelab-infra", "docker-compose.yml", "Add service shop"}}, forge.commits)
		assert.Contains(t, string(forge.files[fileKey("Acme", "homelab-infra", "docker-compose.yml")].Content), "ghcr.io/acme/shop:latest")
	})

	t.Run("ExistingServiceWritesNothing", func(t *testing.T) {
		forge := newFakeForge()
		seed(forge)
		pub := testPublisher(t, forge, nil)

		_, err := pub.WireInfra(context.Background(), "shop")
		require.NoError(t, err)
		forge.commits = nil

		outcome, err := pub.WireInfra(context.Background(), "shop")
		require.NoError(t, err)
		assert.Equal(t, OutcomeExists, outcome)
		assert.Empty(t, forge.commits)
	})

	t.Run("MissingManifest", func(t *testing.T) {
		outcome, err := testPublisher(t, newFakeForge(), nil).WireInfra(context.Background(), "shop")
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, OutcomeFailed, outcome)
	})
}

func TestPublisherDeploy(t *testing.T) {
	t.Run("EndToEnd", func(t *testing.T) {
		forge := newFakeForge()
		forge.files[fileKey("Acme", "homelab-infra", "docker-compose.yml")] = &File{
			Path: "docker-compose.yml", SHA: "base", Content: []byte(infraManifest),
		}

		result, err := testPublisher(t, forge, &fakeGenerator{project: shopProject()}).Deploy(context.Background(), "a shop")
		require.NoError(t, err)
		assert.Equal(t, "shop", result.Project)
		assert.Equal(t, OutcomeAdded, result.Infra)
		assert.Len(t, result.Files, 4)
	})

	t.Run("InfraFailureKeepsRepository", func(t *testing.T) {
		forge := newFakeForge()

		result, err := testPublisher(t, forge, &fakeGenerator{project: shopProject()}).Deploy(context.Background(), "a shop")
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, result.Infra)
		assert.NotEmpty(t, result.InfraError)
		assert.True(t, forge.repos["Acme/shop"])
	})

	t.Run("GenerationFailure", func(t *testing.T) {
		forge := newFakeForge()

		_, err := testPublisher(t, forge, &fakeGenerator{err: errors.New("bad json")}).Deploy(context.Background(), "x")
		require.Error(t, err)
		assert.Empty(t, forge.repos)
	})
}
