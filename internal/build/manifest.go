// Package build turns a manifest and the files it names into a package
// artifact, and reads artifacts back for inspection.
package build

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes what goes into a package.
type Manifest struct {
	Description string   `yaml:"description"`
	Files       []string `yaml:"files"`
}

// LoadManifest reads and parses a manifest YAML file. Unknown fields are
// rejected so typos surface early.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Files) == 0 {
		return fmt.Errorf("files list is required and must be non-empty")
	}
	for _, pattern := range m.Files {
		if pattern == "" {
			return fmt.Errorf("empty file pattern")
		}
		if filepath.IsAbs(pattern) || !filepath.IsLocal(filepath.Clean(pattern)) {
			return fmt.Errorf("pattern %q must stay inside the manifest directory", pattern)
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Resolve expands the manifest's patterns relative to dir and returns the
// matched regular files as sorted, slash-separated relative paths.
// Directories are included recursively. Every pattern must match something.
func (m *Manifest) Resolve(dir string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(abs string) error {
		rel, err := filepath.Rel(dir, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !seen[rel] {
			seen[rel] = true
			files = append(files, rel)
		}
		return nil
	}

	for _, pattern := range m.Files {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", pattern)
		}

		for _, match := range matches {
			err := filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.Type().IsRegular() {
					return add(path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to collect %s: %w", match, err)
			}
		}
	}

	slices.Sort(files)
	for _, f := range files {
		if f == MetadataName || strings.HasPrefix(f, "../") {
			return nil, fmt.Errorf("file %q cannot be packaged", f)
		}
	}
	return files, nil
}
