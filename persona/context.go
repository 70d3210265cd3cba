package persona

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	initialPromptFile = "initial_prompt.md"
	personaPattern    = "personas/**/*.{md,txt,yaml,yml}"
)

// yamlPersona is the shape of a YAML persona file.
type yamlPersona struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

type definition struct {
	name   string
	prompt string
}

// FileContext loads the initial prompt and persona definitions from a
// directory:
//
//	<dir>/initial_prompt.md
//	<dir>/personas/**/<id>.{md,txt,yaml,yml}
//
// Definitions are read once and cached.
type FileContext struct {
	dir  string
	defs map[string]definition
}

// NewFileContext returns a context rooted at dir.
func NewFileContext(dir string) *FileContext {
	return &FileContext{dir: dir}
}

// InitialPrompt returns the contents of initial_prompt.md, or "" if the file
// does not exist.
func (c *FileContext) InitialPrompt() (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, initialPromptFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "could not read initial prompt")
	}
	return strings.TrimSpace(string(data)), nil
}

// PersonaDefinitions returns persona id to prompt text.
func (c *FileContext) PersonaDefinitions() (map[string]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(c.defs))
	for id, d := range c.defs {
		out[id] = d.prompt
	}
	return out, nil
}

// DisplayName returns the persona's name: the YAML name, else the first
// markdown heading, else "".
func (c *FileContext) DisplayName(id string) string {
	if err := c.load(); err != nil {
		return ""
	}
	return c.defs[id].name
}

func (c *FileContext) load() error {
	if c.defs != nil {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(c.dir), personaPattern)
	if err != nil {
		return errors.Wrapf(err, "could not list personas in %s", c.dir)
	}

	defs := make(map[string]definition, len(matches))
	for _, rel := range matches {
		data, err := os.ReadFile(filepath.Join(c.dir, rel))
		if err != nil {
			return errors.Wrapf(err, "could not read persona %s", rel)
		}

		ext := filepath.Ext(rel)
		id := strings.TrimSuffix(filepath.Base(rel), ext)

		var d definition
		switch ext {
		case ".yaml", ".yml":
			var p yamlPersona
			if err := yaml.Unmarshal(data, &p); err != nil {
				return errors.Wrapf(err, "invalid persona file %s", rel)
			}
			d = definition{name: p.Name, prompt: strings.TrimSpace(p.Prompt)}
		default:
			text := strings.TrimSpace(string(data))
			d = definition{name: firstHeading(text), prompt: text}
		}
		defs[id] = d
	}

	c.defs = defs
	return nil
}

func firstHeading(text string) string {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// StaticContext is an in-memory ContextProvider.
type StaticContext struct {
	Prompt   string
	Personas map[string]string
	Names    map[string]string
}

func (c StaticContext) InitialPrompt() (string, error) { return c.Prompt, nil }

func (c StaticContext) PersonaDefinitions() (map[string]string, error) {
	out := make(map[string]string, len(c.Personas))
	for id, p := range c.Personas {
		out[id] = p
	}
	return out, nil
}

func (c StaticContext) DisplayName(id string) string { return c.Names[id] }
