package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const infraManifest = `# homelab stack
services:
  web:
    image: nginx:latest
    container_name: web
networks:
  siec:
    external: true
`

type manifest struct {
	Services map[string]composeService `yaml:"services"`
	Networks map[string]map[string]any `yaml:"networks"`
}

func shopService() ServiceSpec {
	return ServiceSpec{
		Name:          "shop",
		Owner:         "acme",
		Image:         "ghcr.io/acme/shop:latest",
		Network:       "siec",
		ContainerPort: 80,
	}
}

func TestPatchCompose(t *testing.T) {
	t.Run("AddsService", func(t *testing.T) {
		out, added, err := PatchCompose([]byte(infraManifest), shopService())
		require.NoError(t, err)
		require.True(t, added)

		var m manifest
		require.NoError(t, yaml.Unmarshal(out, &m))
		require.Contains(t, m.Services, "web")
		require.Contains(t, m.Services, "shop")

		shop := m.Services["shop"]
		assert.Equal(t, "ghcr.io/acme/shop:latest", shop.Image)
		assert.Equal(t, "shop", shop.ContainerName)
		assert.Equal(t, "always", shop.Restart)
		assert.Equal(t, []string{"siec"}, shop.Networks)
		assert.Contains(t, shop.Labels, "traefik.http.routers.shop.rule=Host(`shop.${DOMAIN}`)")
		assert.Contains(t, shop.Labels, "tsdproxy.container_port=80")
		assert.Contains(t, shop.Labels, "com.centurylinklabs.watchtower.enable=true")

		assert.Equal(t, map[string]any{"external": true}, m.Networks["siec"])
		assert.Contains(t, string(out), "# homelab stack")
		assert.Contains(t, string(out), "# Auto: shop (acme)")
	})

	t.Run("ExistingServiceIsLeftAlone", func(t *testing.T) {
		once, added, err := PatchCompose([]byte(infraManifest), shopService())
		require.NoError(t, err)
		require.True(t, added)

		twice, added, err := PatchCompose(once, shopService())
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, once, twice)
	})

	t.Run("MatchesContainerName", func(t *testing.T) {
		doc := "services:\n  legacy:\n    image: old\n    container_name: shop\n"

		out, added, err := PatchCompose([]byte(doc), shopService())
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, doc, string(out))
	})

	t.Run("CreatesServicesBeforeNetworks", func(t *testing.T) {
		doc := "version: '3'\nnetworks:\n  siec: {}\n"

		out, added, err := PatchCompose([]byte(doc), shopService())
		require.NoError(t, err)
		require.True(t, added)

		var root yaml.Node
		require.NoError(t, yaml.Unmarshal(out, &root))
		top := root.Content[0]
		var keys []string
		for i := 0; i < len(top.Content); i += 2 {
			keys = append(keys, top.Content[i].Value)
		}
		assert.Equal(t, []string{"version", "services", "networks"}, keys)
	})

	t.Run("EmptyServices", func(t *testing.T) {
		out, added, err := PatchCompose([]byte("services:\n"), shopService())
		require.NoError(t, err)
		require.True(t, added)

		var m manifest
		require.NoError(t, yaml.Unmarshal(out, &m))
		assert.Contains(t, m.Services, "shop")
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		out, added, err := PatchCompose(nil, shopService())
		require.NoError(t, err)
		require.True(t, added)

		var m manifest
		require.NoError(t, yaml.Unmarshal(out, &m))
		assert.Contains(t, m.Services, "shop")
	})

	t.Run("RejectsNonMapping", func(t *testing.T) {
		_, _, err := PatchCompose([]byte("- a\n- b\n"), shopService())
		require.Error(t, err)

		_, _, err = PatchCompose([]byte("services: [a]\n"), shopService())
		require.Error(t, err)
	})
}

func TestBuildWorkflow(t *testing.T) {
	out, err := BuildWorkflow("acme", "shop", "ghcr.io")
	require.NoError(t, err)

	var wf map[string]any
	require.NoError(t, yaml.Unmarshal(out, &wf))
	assert.Equal(t, "Build and Push", wf["name"])
	assert.Equal(t, []any{"push"}, wf["on"])
	assert.Equal(t, map[string]any{"REGISTRY": "ghcr.io", "IMAGE_NAME": "acme/shop"}, wf["env"])

	jobs := wf["jobs"].(map[string]any)
	build := jobs["build-push"].(map[string]any)
	assert.Equal(t, "ubuntu-latest", build["runs-on"])
	assert.Equal(t, map[string]any{"contents": "read", "packages": "write"}, build["permissions"])

	steps := build["steps"].([]any)
	require.Len(t, steps, 3)
	assert.Equal(t, "actions/checkout@v4", steps[0].(map[string]any)["uses"])
	push := steps[2].(map[string]any)["with"].(map[string]any)
	assert.Equal(t, true, push["push"])
	assert.Equal(t, "${{ env.REGISTRY }}/${{ env.IMAGE_NAME }}:latest", push["tags"])
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "ghcr.io/acme/shop:latest", ImageName("ghcr.io", "acme", "shop"))
}
