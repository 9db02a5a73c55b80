package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
)

// ErrMissingTemplateField is returned by [Template.Render] when a required
// template variable was not provided.
var ErrMissingTemplateField = errors.New("missing template field")

// Template drives consistent entry structure: each non-empty field is a
// pattern with "{variable}" placeholders that Render fills from caller
// values.
type Template struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Context        string   `json:"context,omitempty"`
	Intent         string   `json:"intent,omitempty"`
	Action         string   `json:"action,omitempty"`
	Observation    string   `json:"observation,omitempty"`
	Analysis       string   `json:"analysis,omitempty"`
	NextSteps      string   `json:"next_steps,omitempty"`
	RequiredFields []string `json:"required_fields,omitempty"`
	OptionalFields []string `json:"optional_fields,omitempty"`
	DefaultOutcome string   `json:"default_outcome,omitempty"`
}

// RenderedFields holds the section text produced by [Template.Render].
// Empty strings mean the template does not define that section.
type RenderedFields struct {
	Context     string
	Intent      string
	Action      string
	Observation string
	Analysis    string
	NextSteps   string
}

// Render substitutes values into the template's field patterns.
//
// All RequiredFields must be present in values or Render fails with an error
// satisfying errors.Is(err, ErrMissingTemplateField). Placeholders without a
// provided value are left literal.
func (t *Template) Render(values map[string]string) (RenderedFields, error) {
	var missing []string

	for _, name := range t.RequiredFields {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return RenderedFields{}, fmt.Errorf("%w: template %q requires %s",
			ErrMissingTemplateField, t.Name, strings.Join(missing, ", "))
	}

	pairs := make([]string, 0, len(values)*2)
	for name, value := range values {
		pairs = append(pairs, "{"+name+"}", value)
	}

	replacer := strings.NewReplacer(pairs...)

	return RenderedFields{
		Context:     replacer.Replace(t.Context),
		Intent:      replacer.Replace(t.Intent),
		Action:      replacer.Replace(t.Action),
		Observation: replacer.Replace(t.Observation),
		Analysis:    replacer.Replace(t.Analysis),
		NextSteps:   replacer.Replace(t.NextSteps),
	}, nil
}

// Templates is a named registry of entry templates.
type Templates struct {
	byName map[string]*Template
}

// NewTemplates builds a registry from the given templates.
// Later entries override earlier ones with the same name.
func NewTemplates(templates ...*Template) *Templates {
	reg := &Templates{byName: make(map[string]*Template, len(templates))}

	for _, t := range templates {
		reg.byName[t.Name] = t
	}

	return reg
}

// DefaultTemplates returns the built-in templates available to every
// project: diagnostic tool-call entries plus build and test operations.
func DefaultTemplates() *Templates {
	return NewTemplates(
		&Template{
			Name:           "diagnostic",
			Description:    "Tool call diagnostic entry for tracking command execution",
			Context:        "Executing {tool} command",
			Action:         "{command}",
			Observation:    "Exit code: {exit_code}, Duration: {duration_ms}ms",
			Analysis:       "{analysis}",
			RequiredFields: []string{"tool", "status"},
			OptionalFields: []string{"command", "duration_ms", "exit_code", "error_type", "analysis"},
		},
		&Template{
			Name:           "build",
			Description:    "Build operation entry",
			Context:        "Building {target}",
			Intent:         "Compile and link {target} with {config}",
			Action:         "Running build command",
			RequiredFields: []string{"target"},
			OptionalFields: []string{"config", "flags"},
		},
		&Template{
			Name:           "test",
			Description:    "Test execution entry",
			Context:        "Running tests for {target}",
			Intent:         "Verify {target} functionality",
			RequiredFields: []string{"target"},
			OptionalFields: []string{"test_filter", "flags"},
		},
	)
}

// Get returns the template with the given name, or nil if unknown.
func (r *Templates) Get(name string) *Template {
	if r == nil {
		return nil
	}

	return r.byName[name]
}

// Names returns all registered template names, sorted.
func (r *Templates) Names() []string {
	if r == nil {
		return nil
	}

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// LoadTemplates reads a template catalog from a HuJSON file (JSON with
// comments and trailing commas) and merges it over the default templates.
// A file entry with the same name as a default replaces it.
//
// The file is a JSON array of template objects.
func LoadTemplates(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("standardize templates %s: %w", path, err)
	}

	var loaded []*Template

	err = json.Unmarshal(standardized, &loaded)
	if err != nil {
		return nil, fmt.Errorf("decode templates %s: %w", path, err)
	}

	reg := DefaultTemplates()
	for _, t := range loaded {
		if t.Name == "" {
			return nil, fmt.Errorf("decode templates %s: template without name", path)
		}

		reg.byName[t.Name] = t
	}

	return reg, nil
}
