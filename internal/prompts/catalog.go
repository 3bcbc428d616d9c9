package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/medinsight/medinsight/internal/schema"
)

//go:embed default.yaml
var defaultCatalog []byte

// Template names understood by Catalog.Render.
const (
	SynthesisSystem    = "synthesis_system"
	SynthesisUser      = "synthesis_user"
	ErrorRepair        = "error_repair"
	EmptyRepair        = "empty_repair"
	NarrationSystem    = "narration_system"
	NarrationUser      = "narration_user"
	NarrationTruncated = "narration_truncated"
	ErrorExhausted     = "error_exhausted"
)

var requiredTemplates = []string{
	SynthesisSystem,
	SynthesisUser,
	ErrorRepair,
	EmptyRepair,
	NarrationSystem,
	NarrationUser,
	NarrationTruncated,
}

type TableHint struct {
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
}

type Example struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

type Synonym struct {
	Terms   []string `yaml:"terms"`
	Meaning string   `yaml:"meaning"`
}

type Messages struct {
	NoData         string `yaml:"no_data"`
	NotFound       string `yaml:"not_found"`
	ErrorExhausted string `yaml:"error_exhausted"`
}

// Catalog is the domain knowledge and prompt wording handed to the model.
// Templates are parsed once when the catalog is loaded.
type Catalog struct {
	Tables     map[string]TableHint `yaml:"tables"`
	JoinHints  []string             `yaml:"join_hints"`
	Rules      []string             `yaml:"rules"`
	Synonyms   []Synonym            `yaml:"synonyms"`
	Examples   []Example            `yaml:"examples"`
	Broadening []string             `yaml:"broadening"`
	Templates  map[string]string    `yaml:"templates"`
	Messages   Messages             `yaml:"messages"`

	parsed map[string]*template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("prompt catalog %s: %w", path, err)
	}
	return catalog, nil
}

func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode prompt catalog: %w", err)
	}
	if err := catalog.compile(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) compile() error {
	for _, name := range requiredTemplates {
		if strings.TrimSpace(c.Templates[name]) == "" {
			return fmt.Errorf("template %q is required", name)
		}
	}
	if strings.TrimSpace(c.Messages.NoData) == "" {
		return errors.New("message no_data is required")
	}
	if strings.TrimSpace(c.Messages.NotFound) == "" {
		return errors.New("message not_found is required")
	}
	if strings.TrimSpace(c.Messages.ErrorExhausted) == "" {
		return errors.New("message error_exhausted is required")
	}

	sources := make(map[string]string, len(c.Templates)+1)
	for name, text := range c.Templates {
		sources[name] = text
	}
	sources[ErrorExhausted] = c.Messages.ErrorExhausted

	c.parsed = make(map[string]*template.Template, len(sources))
	for name, text := range sources {
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("parse template %q: %w", name, err)
		}
		c.parsed[name] = tmpl
	}
	return nil
}

var funcs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}

// Render executes the named template against data.
func (c *Catalog) Render(name string, data any) (string, error) {
	tmpl, ok := c.parsed[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(out.String()), nil
}

// SchemaHints converts the catalog's table knowledge into descriptor hints.
func (c *Catalog) SchemaHints() schema.Hints {
	hints := schema.Hints{
		Tables:    make(map[string]schema.TableHint, len(c.Tables)),
		JoinHints: append([]string(nil), c.JoinHints...),
	}
	for name, table := range c.Tables {
		role := schema.RoleRaw
		if strings.EqualFold(strings.TrimSpace(table.Role), string(schema.RoleAggregate)) {
			role = schema.RoleAggregate
		}
		hints.Tables[name] = schema.TableHint{Role: role, Description: strings.TrimSpace(table.Description)}
	}
	return hints
}

// LanguageName maps a language code to the name used inside prompts.
func LanguageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "ru":
		return "Russian"
	case "en":
		return "English"
	case "de":
		return "German"
	case "kk":
		return "Kazakh"
	default:
		return code
	}
}
