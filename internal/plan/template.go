// Package plan holds the standard parenting plan sections the service is
// seeded with.
package plan

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"coparent/api/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed template.yaml
var defaultTemplate []byte

type Template struct {
	Sections []TemplateSection `yaml:"sections"`
}

type TemplateSection struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Content  string        `yaml:"content"`
	Approval ApprovalFlags `yaml:"approval"`
}

type ApprovalFlags struct {
	PartyA bool `yaml:"partyA"`
	PartyB bool `yaml:"partyB"`
}

// DefaultTemplate returns the embedded template.
func DefaultTemplate() (Template, error) {
	return Parse(defaultTemplate)
}

// Load reads a template from path, or returns the embedded one when path is empty.
func Load(path string) (Template, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read plan template: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return Template{}, fmt.Errorf("parse plan template: %w", err)
	}
	if len(tpl.Sections) == 0 {
		return Template{}, errors.New("plan template has no sections")
	}
	seen := make(map[string]bool, len(tpl.Sections))
	for i, section := range tpl.Sections {
		id := strings.TrimSpace(section.ID)
		if id == "" {
			return Template{}, fmt.Errorf("plan template section %d has no id", i)
		}
		if seen[id] {
			return Template{}, fmt.Errorf("plan template section %q is duplicated", id)
		}
		seen[id] = true
		tpl.Sections[i].ID = id
		if strings.TrimSpace(section.Title) == "" {
			tpl.Sections[i].Title = id
		}
		tpl.Sections[i].Content = strings.TrimSpace(section.Content)
	}
	return tpl, nil
}

// SectionSeeder is the part of the store seeding needs.
type SectionSeeder interface {
	EnsureSection(ctx context.Context, section store.Section, approval store.Approval) (bool, error)
}

// Seed inserts every template section that does not exist yet and returns
// the ids it created.
func Seed(ctx context.Context, seeder SectionSeeder, tpl Template) ([]store.SectionID, error) {
	var created []store.SectionID
	for i, section := range tpl.Sections {
		ok, err := seeder.EnsureSection(ctx, store.Section{
			ID:        store.SectionID(section.ID),
			Title:     section.Title,
			Content:   section.Content,
			SortOrder: i,
		}, store.Approval{PartyA: section.Approval.PartyA, PartyB: section.Approval.PartyB})
		if err != nil {
			return created, fmt.Errorf("seed section %s: %w", section.ID, err)
		}
		if ok {
			created = append(created, store.SectionID(section.ID))
		}
	}
	return created, nil
}
