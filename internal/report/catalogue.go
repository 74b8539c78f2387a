// Package report holds the fixed catalogue of analytical reports and turns
// their result tables into chart data.
package report

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"insights/internal/core"
	"insights/internal/query"
)

//go:embed reports.yaml
var defaultCatalogue []byte

// ChartSpec binds result columns to a bar chart.
type ChartSpec struct {
	Title string `yaml:"title" json:"title,omitempty"`
	X     string `yaml:"x" json:"x"`
	Y     string `yaml:"y" json:"y"`
	// Group splits bars into one series per distinct value (the hue).
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	// Limit caps the number of rows charted; 0 charts every row.
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// Spec is one named report. Specs are immutable once the catalogue is loaded.
type Spec struct {
	Name        string       `yaml:"name" json:"name"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string       `yaml:"-" json:"category"`
	SQL         string       `yaml:"sql" json:"sql"`
	AliasPrefix string       `yaml:"alias_prefix,omitempty" json:"alias_prefix,omitempty"`
	Filters     []core.Field `yaml:"filters,omitempty" json:"filters"`
	Chart       *ChartSpec   `yaml:"chart,omitempty" json:"chart,omitempty"`
}

// AcceptsFilters reports whether the report uses any sidebar filter.
func (s *Spec) AcceptsFilters() bool {
	return len(s.Filters) > 0
}

// Compose merges the accepted subset of f into the report's template.
func (s *Spec) Compose(f core.FilterSet) (query.Query, error) {
	q, err := query.Compose(s.SQL, f.Only(s.Filters...), s.AliasPrefix)
	if err != nil {
		return query.Query{}, fmt.Errorf("compose %s: %w", s.Name, err)
	}
	return q, nil
}

// Category groups reports under one dashboard tab.
type Category struct {
	Key     string  `yaml:"key" json:"key"`
	Title   string  `yaml:"title" json:"title"`
	Reports []*Spec `yaml:"reports" json:"reports"`
}

// Catalogue is the ordered set of reports.
type Catalogue struct {
	Categories []*Category `yaml:"categories" json:"categories"`

	byName map[string]*Spec
	order  []*Spec
}

// Default parses the embedded catalogue.
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// Load reads a catalogue file, falling back to the embedded one when path is empty.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

var (
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	prefixPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?$`)
)

func (c *Catalogue) index() error {
	var problems []string
	c.byName = make(map[string]*Spec)
	c.order = nil
	seenCategory := make(map[string]bool)

	if len(c.Categories) == 0 {
		return errors.New("catalogue has no categories")
	}

	for _, cat := range c.Categories {
		if !namePattern.MatchString(cat.Key) {
			problems = append(problems, fmt.Sprintf("invalid category key %q", cat.Key))
		}
		if seenCategory[cat.Key] {
			problems = append(problems, fmt.Sprintf("duplicate category %q", cat.Key))
		}
		seenCategory[cat.Key] = true

		for _, s := range cat.Reports {
			s.Category = cat.Key
			s.SQL = strings.TrimSpace(s.SQL)
			problems = append(problems, validateSpec(s)...)
			if _, dup := c.byName[s.Name]; dup {
				problems = append(problems, fmt.Sprintf("duplicate report %q", s.Name))
				continue
			}
			c.byName[s.Name] = s
			c.order = append(c.order, s)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid catalogue:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func validateSpec(s *Spec) []string {
	var problems []string
	if !namePattern.MatchString(s.Name) {
		problems = append(problems, fmt.Sprintf("invalid report name %q", s.Name))
	}
	if s.SQL == "" {
		problems = append(problems, fmt.Sprintf("report %s: empty sql", s.Name))
	}
	if !prefixPattern.MatchString(s.AliasPrefix) {
		problems = append(problems, fmt.Sprintf("report %s: alias prefix %q must look like \"alias.\"", s.Name, s.AliasPrefix))
	}
	for _, f := range s.Filters {
		if !f.IsValid() {
			problems = append(problems, fmt.Sprintf("report %s: unknown filter %q", s.Name, f))
		}
	}
	if s.AcceptsFilters() {
		// Probe with every field set so marker problems surface at load time.
		probe := core.FilterSet{State: "probe", Year: core.Years[0], Quarter: core.Quarters[0]}
		if _, err := s.Compose(probe); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if s.Chart != nil {
		if s.Chart.X == "" || s.Chart.Y == "" {
			problems = append(problems, fmt.Sprintf("report %s: chart needs x and y columns", s.Name))
		}
		if s.Chart.Limit < 0 {
			problems = append(problems, fmt.Sprintf("report %s: negative chart limit", s.Name))
		}
	}
	return problems
}

// Get looks up a report by name.
func (c *Catalogue) Get(name string) (*Spec, error) {
	s, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrReportNotFound, name)
	}
	return s, nil
}

// Reports returns every report in catalogue order.
func (c *Catalogue) Reports() []*Spec {
	out := make([]*Spec, len(c.order))
	copy(out, c.order)
	return out
}

// Category returns the category with the given key.
func (c *Catalogue) Category(key string) (*Category, bool) {
	for _, cat := range c.Categories {
		if cat.Key == key {
			return cat, true
		}
	}
	return nil, false
}

// Len returns the number of reports.
func (c *Catalogue) Len() int {
	return len(c.order)
}
