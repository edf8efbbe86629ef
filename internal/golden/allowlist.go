// Package golden builds the curated golden repertory from the source graph.
package golden

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed allowlist.yaml
var defaultAllowList []byte

// AllowListEntry is one curated rubric path with its English rendering.
type AllowListEntry struct {
	Path string `yaml:"path"`
	EN   string `yaml:"en"`
}

// AllowList is the versioned set of rubric paths the builder curates.
type AllowList struct {
	Version  string            `yaml:"version"`
	Chapters map[string]string `yaml:"chapters"`
	Rubrics  []AllowListEntry  `yaml:"rubrics"`

	translations map[string]string
}

// ParseAllowList decodes and validates a YAML allow-list.
func ParseAllowList(data []byte) (*AllowList, error) {
	var a AllowList
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse allow-list: %w", err)
	}
	if len(a.Rubrics) == 0 {
		return nil, fmt.Errorf("allow-list has no rubrics")
	}

	seen := make(map[string]struct{}, len(a.Rubrics))
	a.translations = make(map[string]string, len(a.Rubrics))
	for i, e := range a.Rubrics {
		path := strings.TrimSpace(e.Path)
		if path == "" {
			return nil, fmt.Errorf("allow-list entry %d has an empty path", i)
		}
		if _, dup := seen[path]; dup {
			return nil, fmt.Errorf("allow-list path %q is listed twice", path)
		}
		seen[path] = struct{}{}
		a.Rubrics[i].Path = path
		if en := strings.TrimSpace(e.EN); en != "" {
			a.translations[path] = en
		}
	}
	return &a, nil
}

// LoadAllowList reads an allow-list file. An empty path selects the embedded one.
func LoadAllowList(path string) (*AllowList, error) {
	if path == "" {
		return ParseAllowList(defaultAllowList)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	return ParseAllowList(data)
}

// Paths returns the curated paths in file order.
func (a *AllowList) Paths() []string {
	out := make([]string, len(a.Rubrics))
	for i, e := range a.Rubrics {
		out[i] = e.Path
	}
	return out
}

// Chapter maps the first segment of a full path to its normalized chapter.
func (a *AllowList) Chapter(fullPath string) string {
	raw := firstSegment(fullPath)
	if c, ok := a.Chapters[raw]; ok {
		return c
	}
	return raw
}

// Translate returns the English full path, or "" when none is known.
// Chapter roots translate through the chapter map.
func (a *AllowList) Translate(fullPath string) string {
	if en, ok := a.translations[fullPath]; ok {
		return en
	}
	if !strings.Contains(fullPath, ",") {
		if c, ok := a.Chapters[strings.TrimSpace(fullPath)]; ok {
			return c
		}
	}
	return ""
}

func firstSegment(path string) string {
	if i := strings.Index(path, ","); i >= 0 {
		return strings.TrimSpace(path[:i])
	}
	return strings.TrimSpace(path)
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, ","); i >= 0 {
		return strings.TrimSpace(path[i+1:])
	}
	return strings.TrimSpace(path)
}
