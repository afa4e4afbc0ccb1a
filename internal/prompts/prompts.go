// Package prompts renders the instruction documents sent to the model.
//
// Templates live in a YAML catalogue (an embedded default, optionally
// replaced by a file on disk) and are rendered with text/template. Each
// artifact kind has its own typed context, so what a template can see is
// fixed at compile time and template output can be tested without a model.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultPackage is the Java base package used when none is configured.
const DefaultPackage = "com.ezone"

// requiredTemplates must all be present in a catalogue.
var requiredTemplates = []string{
	RepositoryTemplate,
	ServiceTemplate,
	ModelTemplate,
	ControllerTemplate,
	ApplicationTemplate,
	SecurityTemplate,
	WebTemplate,
	SettingsTemplate,
	DescriptorTemplate,
}

// catalog is the YAML shape of a template catalogue.
type catalog struct {
	Templates map[string]string `yaml:"templates"`
	Partials  map[string]string `yaml:"partials"`
}

// Renderer renders typed contexts into instruction documents.
type Renderer struct {
	set         *template.Template
	basePackage string
}

// New returns a Renderer over the embedded catalogue.
func New(basePackage string) (*Renderer, error) {
	return Parse(defaultCatalog, basePackage)
}

// Load returns a Renderer over the catalogue file at path.
func Load(path, basePackage string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalogue: %w", err)
	}
	return Parse(data, basePackage)
}

// Parse builds a Renderer from catalogue YAML.
func Parse(data []byte, basePackage string) (*Renderer, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalogue: %w", err)
	}

	var missing []string
	for _, name := range requiredTemplates {
		if strings.TrimSpace(c.Templates[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("prompt catalogue is missing templates: %s", strings.Join(missing, ", "))
	}

	set := template.New("catalogue").Option("missingkey=error")
	for _, group := range []map[string]string{c.Partials, c.Templates} {
		names := make([]string, 0, len(group))
		for name := range group {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := set.New(name).Parse(group[name]); err != nil {
				return nil, fmt.Errorf("template %q: %w", name, err)
			}
		}
	}

	if basePackage == "" {
		basePackage = DefaultPackage
	}
	return &Renderer{set: set, basePackage: basePackage}, nil
}

// Render executes the template that belongs to ctx.
func (r *Renderer) Render(ctx Context) (string, error) {
	var b strings.Builder
	if err := r.set.ExecuteTemplate(&b, ctx.templateName(), ctx.withPackage(r.basePackage)); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", ctx.templateName(), err)
	}
	return b.String(), nil
}
