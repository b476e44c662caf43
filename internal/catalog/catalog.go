package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

//go:embed catalogs/*.yml
var files embed.FS

var ErrUnknownType = errors.New("no catalog for checklist type")

type Rule struct {
	Type     string `yaml:"type"`
	Value    any    `yaml:"value"`
	Message  string `yaml:"message"`
	Severity string `yaml:"severity"`
}

// Entry is one item definition in a catalog file.
type Entry struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title"`
	Description   string   `yaml:"description"`
	Type          string   `yaml:"type"`
	Required      bool     `yaml:"required"`
	Category      string   `yaml:"category"`
	Order         int      `yaml:"order"`
	Unit          string   `yaml:"unit"`
	Min           *float64 `yaml:"min"`
	Max           *float64 `yaml:"max"`
	RangeSeverity string   `yaml:"range_severity"`
	Options       []string `yaml:"options"`
	DependsOn     []string `yaml:"depends_on"`
	Rules         []Rule   `yaml:"rules"`
}

type Catalog struct {
	Type    domain.ChecklistType `yaml:"type"`
	Title   string               `yaml:"title"`
	Version string               `yaml:"version"`
	Entries []Entry              `yaml:"items"`
}

// Parse decodes and validates a catalog document. Custom item lists use the same format.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Type == "" {
		c.Type = domain.ChecklistCustom
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks the catalog the same way a new checklist is checked.
func (c Catalog) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("catalog: unknown checklist type %q", c.Type)
	}
	if len(c.Entries) == 0 {
		return fmt.Errorf("catalog %s: no items", c.Type)
	}
	for _, e := range c.Entries {
		if e.Min != nil && e.Max != nil && *e.Min > *e.Max {
			return fmt.Errorf("catalog %s: item %s: min greater than max", c.Type, e.ID)
		}
		if e.RangeSeverity != "" && !domain.Severity(e.RangeSeverity).Valid() {
			return fmt.Errorf("catalog %s: item %s: unknown range severity %q", c.Type, e.ID, e.RangeSeverity)
		}
	}
	_, err := compliance.NewChecklist(compliance.Params{
		ID:          "catalog",
		Title:       c.Title,
		Type:        c.Type,
		VesselID:    "catalog",
		InspectorID: "catalog",
	}, c.Items(), compliance.DefaultRoles, time.Now())
	if err != nil {
		return fmt.Errorf("catalog %s: %w", c.Type, err)
	}
	return nil
}

// Items instantiates the catalog as pending checklist items. Measurements with both bounds
// get a range rule unless one is declared.
func (c Catalog) Items() []domain.ChecklistItem {
	out := make([]domain.ChecklistItem, 0, len(c.Entries))
	for _, e := range c.Entries {
		item := domain.ChecklistItem{
			ID:           e.ID,
			Title:        e.Title,
			Description:  e.Description,
			Type:         domain.ItemType(e.Type),
			Required:     e.Required,
			Category:     e.Category,
			Order:        e.Order,
			Status:       domain.ItemPending,
			Unit:         e.Unit,
			MinValue:     e.Min,
			MaxValue:     e.Max,
			Options:      slices.Clone(e.Options),
			Dependencies: slices.Clone(e.DependsOn),
		}
		hasRange := false
		for _, r := range e.Rules {
			v, err := compliance.NormalizeValue(r.Value)
			if err != nil {
				v = r.Value
			}
			item.ValidationRules = append(item.ValidationRules, domain.ValidationRule{
				Type:     domain.RuleType(r.Type),
				Value:    v,
				Message:  r.Message,
				Severity: domain.Severity(r.Severity),
			})
			hasRange = hasRange || r.Type == string(domain.RuleRange)
		}
		if e.Min != nil && e.Max != nil && !hasRange {
			sev := domain.Severity(e.RangeSeverity)
			if sev == "" {
				sev = domain.SeverityError
			}
			item.ValidationRules = append(item.ValidationRules, domain.ValidationRule{
				Type:     domain.RuleRange,
				Value:    map[string]any{"min": *e.Min, "max": *e.Max},
				Message:  fmt.Sprintf("%s outside %g-%g %s", e.Title, *e.Min, *e.Max, e.Unit),
				Severity: sev,
			})
		}
		out = append(out, item)
	}
	return out
}

// Categories lists the categories in first-seen order.
func (c Catalog) Categories() []string {
	var out []string
	for _, e := range c.Entries {
		if !slices.Contains(out, e.Category) {
			out = append(out, e.Category)
		}
	}
	return out
}

// Load parses every embedded catalog.
func Load() (map[domain.ChecklistType]Catalog, error) {
	entries, err := files.ReadDir("catalogs")
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ChecklistType]Catalog, len(entries))
	for _, ent := range entries {
		data, err := files.ReadFile(path.Join("catalogs", ent.Name()))
		if err != nil {
			return nil, err
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ent.Name(), err)
		}
		if _, dup := out[c.Type]; dup {
			return nil, fmt.Errorf("%s: duplicate catalog for %s", ent.Name(), c.Type)
		}
		out[c.Type] = c
	}
	return out, nil
}

// Get returns the embedded catalog for t.
func Get(t domain.ChecklistType) (Catalog, error) {
	all, err := Load()
	if err != nil {
		return Catalog{}, err
	}
	c, ok := all[t]
	if !ok {
		return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return c, nil
}

// Types lists the checklist types with an embedded catalog.
func Types() []domain.ChecklistType {
	all, err := Load()
	if err != nil {
		return nil
	}
	out := make([]domain.ChecklistType, 0, len(all))
	for t := range all {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
