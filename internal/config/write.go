package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Write saves cfg as YAML at path, creating parent directories.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Sample returns a commented starting config for "repovault check --sample".
func Sample(entities []string) ([]byte, error) {
	cfg := Default()
	cfg.Repository.Repository = "owner/repo"
	for _, name := range entities {
		cfg.Include[name] = "true"
	}

	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}
	comments := map[string]string{
		"repository":       "Hosting provider and project (owner/repo or a remote URL)",
		"data_root":        "Directory holding saved entity files",
		"include":          "Per entity: true, false, or numbers such as \"1-10 20\"",
		"strict_selection": "Fail instead of warn when a child's parent is disabled",
		"conflict":         "Restore collisions: skip, overwrite, rename or fail",
		"journal":          "Run history: sqlite, postgres or none",
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if c, ok := comments[doc.Content[i].Value]; ok {
			doc.Content[i].HeadComment = c
		}
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("marshal sample: %w", err)
	}
	return out, nil
}
