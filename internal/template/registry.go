// Package template loads message template definitions from YAML files.
package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is one outbound message definition.
type Template struct {
	Name     string `yaml:"name"`
	Body     string `yaml:"body"`
	Language string `yaml:"language,omitempty"`
}

// Registry holds the loaded templates, keyed by name.
type Registry struct {
	templates map[string]Template
}

// LoadFromDirectory loads template definitions from YAML files in a directory.
// Files must have a .yaml or .yml extension. Unreadable or malformed files
// are skipped with a warning so one bad file cannot take down the gateway.
func LoadFromDirectory(dir string, logger *slog.Logger) (*Registry, error) {
	reg := &Registry{templates: make(map[string]Template)}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("templates directory does not exist, skipping", "dir", dir)
		return reg, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read template file", "path", path, "err", err)
			continue
		}

		var tpl Template
		if err := yaml.Unmarshal(data, &tpl); err != nil {
			logger.Warn("cannot parse template file", "path", path, "err", err)
			continue
		}

		if tpl.Name == "" {
			tpl.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if tpl.Body == "" {
			logger.Warn("template has no body, skipping", "path", path)
			continue
		}

		logger.Info("loaded template", "name", tpl.Name, "path", path)
		reg.templates[tpl.Name] = tpl
	}

	return reg, nil
}

// Get returns a template by name.
func (r *Registry) Get(name string) (Template, bool) {
	tpl, ok := r.templates[name]
	return tpl, ok
}

// Names returns the loaded template names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
