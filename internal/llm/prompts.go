package llm

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/prompts.yaml
var promptsYAML []byte

// Prompt is one catalog entry. System and User are text/template sources.
type Prompt struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

// Catalog holds parsed prompt templates by name.
type Catalog struct {
	prompts map[string]Prompt
	system  map[string]*template.Template
	user    map[string]*template.Template
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(promptsYAML)
	})
	return defaultCatalog, defaultErr
}

// ParseCatalog parses a YAML document of name -> {version, system, user}.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]Prompt
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	c := &Catalog{
		prompts: raw,
		system:  make(map[string]*template.Template, len(raw)),
		user:    make(map[string]*template.Template, len(raw)),
	}
	for name, p := range raw {
		if strings.TrimSpace(p.User) == "" {
			return nil, fmt.Errorf("prompt %s: empty user template", name)
		}
		st, err := template.New(name + ".system").Option("missingkey=error").Parse(p.System)
		if err != nil {
			return nil, fmt.Errorf("prompt %s system: %w", name, err)
		}
		ut, err := template.New(name + ".user").Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("prompt %s user: %w", name, err)
		}
		c.system[name] = st
		c.user[name] = ut
	}
	return c, nil
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.prompts[name]
	return ok
}

// Version returns the declared version of a prompt.
func (c *Catalog) Version(name string) string {
	return c.prompts[name].Version
}

// Render executes the templates of name against data.
func (c *Catalog) Render(name string, data any) ([]Message, error) {
	ut, ok := c.user[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	var msgs []Message
	var buf bytes.Buffer
	if err := c.system[name].Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s system: %w", name, err)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	buf.Reset()
	if err := ut.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s user: %w", name, err)
	}
	msgs = append(msgs, Message{Role: "user", Content: strings.TrimSpace(buf.String())})
	return msgs, nil
}

// Text renders name into one string, system first.
func (c *Catalog) Text(name string, data any) (string, error) {
	msgs, err := c.Render(name, data)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n\n"), nil
}
