// Package rewrite holds the safe-rewrite recipe catalogue. Recipes live in
// an embedded YAML file keyed by recipe name; each step is a text/template
// rendered with per-finding metadata (table, column, type, constraint).
package rewrite

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/flvmnt/pgfence/internal/pgast"
)

//go:embed recipes.yaml
var recipesYAML []byte

// Recipe is a safe-rewrite suggestion: a short description plus ordered
// textual steps naming the concrete table and column.
type Recipe struct {
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Meta carries the template data for recipe rendering.
type Meta struct {
	Table      string
	Column     string
	Type       string
	Constraint string
	Index      string
	Default    string
}

// quoted returns a copy with the identifier fields quoted where
// PostgreSQL requires it, so rendered SQL steps stay valid for reserved
// words and mixed-case names. Type and Default are expressions, not
// identifiers, and pass through untouched.
func (m Meta) quoted() Meta {
	m.Table = pgast.QuoteQualified(m.Table)
	m.Column = pgast.QuoteQualified(m.Column)
	m.Constraint = pgast.QuoteQualified(m.Constraint)
	m.Index = pgast.QuoteQualified(m.Index)
	return m
}

// ErrNoRecipe is returned when the catalogue has no entry for a key.
var ErrNoRecipe = fmt.Errorf("no rewrite recipe for this operation")

type recipeDef struct {
	Key         string   `yaml:"key"`
	Description string   `yaml:"description"`
	Steps       []string `yaml:"steps"`
}

type catalogueRoot struct {
	Recipes []recipeDef `yaml:"recipes"`
}

// catalogue holds all parsed recipes, keyed by recipe name.
var catalogue map[string]recipeDef

func init() {
	var root catalogueRoot
	if err := yaml.Unmarshal(recipesYAML, &root); err != nil {
		panic(fmt.Sprintf("failed to parse recipes.yaml: %v", err))
	}
	catalogue = make(map[string]recipeDef, len(root.Recipes))
	for _, r := range root.Recipes {
		catalogue[r.Key] = r
	}
}

// Has reports whether a recipe exists for the given key.
func Has(key string) bool {
	_, ok := catalogue[key]
	return ok
}

// For renders the recipe for a key with the given metadata. Returns
// ErrNoRecipe when the catalogue has no entry.
func For(key string, meta Meta) (*Recipe, error) {
	def, ok := catalogue[key]
	if !ok {
		return nil, ErrNoRecipe
	}

	meta = meta.quoted()
	recipe := &Recipe{
		Description: render(def.Description, meta),
		Steps:       make([]string, 0, len(def.Steps)),
	}
	for _, step := range def.Steps {
		recipe.Steps = append(recipe.Steps, render(step, meta))
	}
	return recipe, nil
}

// MustFor is For with the error swallowed; callers that registered the key
// in the catalogue use it to keep rule bodies short.
func MustFor(key string, meta Meta) *Recipe {
	r, err := For(key, meta)
	if err != nil {
		return nil
	}
	return r
}

// render executes a single template string against the metadata. On a
// malformed template the original text is returned unchanged.
func render(tmplStr string, meta Meta) string {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr
	}

	tmpl, err := template.New("recipe").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, meta); err != nil {
		return tmplStr
	}
	return buf.String()
}
