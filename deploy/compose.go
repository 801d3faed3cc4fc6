package deploy

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ServiceSpec describes the compose service added for a published project.
type ServiceSpec struct {
	Name          string
	Owner         string
	Image         string
	Network       string
	ContainerPort int
}

type composeService struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Restart       string   `yaml:"restart"`
	Labels        []string `yaml:"labels"`
	Networks      []string `yaml:"networks,omitempty"`
}

// Labels returns the reverse-proxy and auto-update labels for the service.
func (s ServiceSpec) Labels() []string {
	return []string{
		"tsdproxy.enable=true",
		"tsdproxy.name=" + s.Name,
		fmt.Sprintf("tsdproxy.container_port=%d", s.ContainerPort),
		"traefik.enable=true",
		fmt.Sprintf("traefik.http.routers.%s.rule=Host(`%s.${DOMAIN}`)", s.Name, s.Name),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints=web", s.Name),
		"com.centurylinklabs.watchtower.enable=true",
	}
}

// PatchCompose adds svc under the top-level services mapping of a compose
// document. It reports false, leaving doc untouched, when a service with the
// same name or container name is already present.
func PatchCompose(doc []byte, svc ServiceSpec) ([]byte, bool, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, false, fmt.Errorf("invalid compose manifest: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, false, errors.New("compose manifest is not a mapping")
	}
	top := root.Content[0]

	services := mappingValue(top, "services")
	switch {
	case services == nil:
		services = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		insertBefore(top, "networks", scalarNode("services"), services)
	case services.Kind == yaml.ScalarNode && services.Tag == "!!null":
		services.Kind, services.Tag, services.Value = yaml.MappingNode, "!!map", ""
	case services.Kind != yaml.MappingNode:
		return nil, false, errors.New("compose services is not a mapping")
	}

	if hasService(services, svc.Name) {
		return doc, false, nil
	}

	service := composeService{
		Image:         svc.Image,
		ContainerName: svc.Name,
		Restart:       "always",
		Labels:        svc.Labels(),
	}
	if svc.Network != "" {
		service.Networks = []string{svc.Network}
	}

	var value yaml.Node
	if err := value.Encode(service); err != nil {
		return nil, false, fmt.Errorf("failed to encode service %s: %w", svc.Name, err)
	}
	key := scalarNode(svc.Name)
	key.HeadComment = fmt.Sprintf("# Auto: %s (%s)", svc.Name, svc.Owner)
	services.Content = append(services.Content, key, &value)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, false, fmt.Errorf("failed to encode compose manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to encode compose manifest: %w", err)
	}
	return buf.Bytes(), true, nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// insertBefore adds key/value ahead of the entry named before, or at the end.
func insertBefore(m *yaml.Node, before string, key, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == before {
			m.Content = append(m.Content[:i], append([]*yaml.Node{key, value}, m.Content[i:]...)...)
			return
		}
	}
	m.Content = append(m.Content, key, value)
}

func hasService(services *yaml.Node, name string) bool {
	for i := 0; i+1 < len(services.Content); i += 2 {
		if services.Content[i].Value == name {
			return true
		}
		if body := services.Content[i+1]; body.Kind == yaml.MappingNode {
			if cn := mappingValue(body, "container_name"); cn != nil && cn.Value == name {
				return true
			}
		}
	}
	return false
}
