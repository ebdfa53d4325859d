// Package campaign loads the YAML campaign file: setting metadata, the
// system prompt and the lore corpus fed to the retriever.
package campaign

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"loremaster/internal/retrieval"
)

// Campaign is the top-level campaign definition.
type Campaign struct {
	Name         string        `yaml:"name"`
	System       string        `yaml:"system"`
	SystemPrompt string        `yaml:"system_prompt"`
	LoreDir      string        `yaml:"lore_dir"`
	Lore         []LoreSection `yaml:"lore"`
}

// LoreSection is one retrievable chunk of setting lore. Sections may be
// written inline in the campaign file or in separate YAML files under
// LoreDir.
type LoreSection struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

// Load reads and validates a campaign file, resolving LoreDir relative to
// the campaign file's directory.
func Load(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("campaign: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if c.LoreDir != "" {
		dir := c.LoreDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		sections, err := loadLoreDir(dir)
		if err != nil {
			return nil, err
		}
		c.Lore = append(c.Lore, sections...)
	}
	return c, nil
}

// Parse unmarshals YAML bytes into a validated Campaign.
func Parse(data []byte) (*Campaign, error) {
	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("campaign: parse: %w", err)
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("campaign: name is required")
	}
	return &c, nil
}

func loadLoreDir(dir string) ([]LoreSection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("campaign: read lore dir %s: %w", dir, err)
	}
	var out []LoreSection
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("campaign: read lore file %s: %w", e.Name(), err)
		}
		var sections []LoreSection
		if err := yaml.Unmarshal(data, &sections); err != nil {
			return nil, fmt.Errorf("campaign: parse lore file %s: %w", e.Name(), err)
		}
		out = append(out, sections...)
	}
	return out, nil
}

// Documents converts the lore sections into retriever documents.
func (c *Campaign) Documents() []retrieval.Document {
	docs := make([]retrieval.Document, 0, len(c.Lore))
	for _, s := range c.Lore {
		docs = append(docs, retrieval.Document{
			Text:    s.Text,
			Source:  c.Name,
			Section: s.Title,
		})
	}
	return docs
}
