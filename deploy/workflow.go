package deploy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkflowPath is where the build workflow is committed in a project repository.
const WorkflowPath = ".github/workflows/deploy.yml"

type workflow struct {
	Name string            `yaml:"name"`
	On   []string          `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs map[string]job    `yaml:"jobs"`
}

type job struct {
	RunsOn      string            `yaml:"runs-on"`
	Permissions map[string]string `yaml:"permissions"`
	Steps       []step            `yaml:"steps"`
}

type step struct {
	Uses string         `yaml:"uses"`
	With map[string]any `yaml:"with,omitempty"`
}

// ImageName returns the registry reference the workflow pushes for owner/name.
func ImageName(registry, owner, name string) string {
	return fmt.Sprintf("%s/%s/%s:latest", registry, owner, name)
}

// BuildWorkflow renders an Actions workflow that builds the repository's
// Dockerfile on every push and pushes it as registry/owner/name:latest.
func BuildWorkflow(owner, name, registry string) ([]byte, error) {
	wf := workflow{
		Name: "Build and Push",
		On:   []string{"push"},
		Env: map[string]string{
			"REGISTRY":   registry,
			"IMAGE_NAME": owner + "/" + name,
		},
		Jobs: map[string]job{
			"build-push": {
				RunsOn: "ubuntu-latest",
				Permissions: map[string]string{
					"contents": "read",
					"packages": "write",
				},
				Steps: []step{
					{Uses: "actions/checkout@v4"},
					{Uses: "docker/login-action@v3", With: map[string]any{
						"registry": "${{ env.REGISTRY }}",
						"username": "${{ github.actor }}",
						"password": "${{ secrets.GITHUB_TOKEN }}",
					}},
					{Uses: "docker/build-push-action@v5", With: map[string]any{
						"context": ".",
						"push":    true,
						"tags":    "${{ env.REGISTRY }}/${{ env.IMAGE_NAME }}:latest",
					}},
				},
			},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(wf); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	return buf.Bytes(), nil
}
