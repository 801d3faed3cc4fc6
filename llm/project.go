package llm

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,99}$`)

// Project is a generated, deployable service.
type Project struct {
	Name  string            `json:"project_name"`
	Files map[string]string `json:"files"`
}

// NormalizeProjectName lowercases name and replaces whitespace and
// underscores with dashes.
func NormalizeProjectName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_':
			return '-'
		}
		return r
	}, name)
}

// Validate checks the name and that every file path stays inside the repository.
func (p *Project) Validate() error {
	if !projectNamePattern.MatchString(p.Name) {
		return fmt.Errorf("invalid project name: %q", p.Name)
	}
	if len(p.Files) == 0 {
		return fmt.Errorf("project %s has no files", p.Name)
	}
	for name := range p.Files {
		clean := path.Clean(name)
		if name == "" || path.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("unsafe file path in project: %q", name)
		}
	}
	return nil
}

// FileNames returns the project's file paths in sorted order.
func (p *Project) FileNames() []string {
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
