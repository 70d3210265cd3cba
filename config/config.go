// Package config loads the keystone configuration from YAML files. The user
// file (~/.keystone/config.yaml) is read first and the project file
// (./.keystone/config.yaml) overrides it.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"gopkg.in/yaml.v3"
)

// Dir is the name of the per-user and per-project configuration directory.
const Dir = ".keystone"

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type History struct {
	MaxLength        int  `yaml:"max_length"`
	PrioritizeSystem bool `yaml:"prioritize_system"`
	PreserveSystem   bool `yaml:"preserve_system"`
}

type Orchestrator struct {
	CommandPrefix       string `yaml:"command_prefix"`
	MaxChainedToolCalls int    `yaml:"max_chained_tool_calls"`
	Mode                string `yaml:"mode"`
	ToolVerbosity       string `yaml:"tool_verbosity"`
}

type Persona struct {
	ContextDir string `yaml:"context_dir"`
	Default    string `yaml:"default"`
}

type Logging struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
	History              History          `yaml:"history"`
	Orchestrator         Orchestrator     `yaml:"orchestrator"`
	Persona              Persona          `yaml:"persona"`
	Logging              Logging          `yaml:"logging"`
}

var (
	knownLLMs       = []string{"", "mock", "anthropic", "openai", "gemini", "bedrock"}
	knownModes      = []string{"auto", "prompt"}
	knownVerbosity  = []string{"none", "info", "all"}
	knownLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	defaultToolsets = []Toolset{{Name: "default", Tools: []string{"read_file", "list_files"}}}
)

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Toolsets: append([]Toolset(nil), defaultToolsets...),
		FilesystemAccess: FilesystemAccess{
			Hidden: []string{Dir, Dir + "/**"},
		},
		History: History{
			MaxLength:        100,
			PrioritizeSystem: true,
			PreserveSystem:   true,
		},
		Orchestrator: Orchestrator{
			CommandPrefix:       "/",
			MaxChainedToolCalls: 10,
			Mode:                "prompt",
			ToolVerbosity:       "info",
		},
		Persona: Persona{
			ContextDir: Dir,
		},
		Logging: Logging{
			Level: "info",
			File:  filepath.Join(Dir, "keystone.log"),
		},
	}
}

// LoadConfig loads the user-level and then the project-level configuration on
// top of Default. projectDir is the directory holding the project's .keystone
// directory; "" means the working directory.
func LoadConfig(projectDir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, Dir, "config.yaml")
		if err := loadIfExists(userConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, errors.Wrapf(err, "could not get working directory")
		}
	}
	projectConfigPath := filepath.Join(projectDir, Dir, "config.yaml")
	if err := loadIfExists(projectConfigPath, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading project config")
	}

	ensureHidden(cfg)
	return cfg, nil
}

func loadIfExists(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return loadFromFile(path, cfg)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so a later
	// file replaces individual keys of an earlier one.
	return yaml.Unmarshal(data, cfg)
}

// ensureHidden keeps the configuration directory hidden from the file tools
// even when a config file replaces the hidden list.
func ensureHidden(cfg *Config) {
	for _, p := range []string{Dir, Dir + "/**"} {
		if !contains(cfg.FilesystemAccess.Hidden, p) {
			cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, p)
		}
	}
}

// Validate reports the first missing or invalid setting as a configuration
// error.
func (c *Config) Validate() error {
	switch {
	case !contains(knownLLMs, c.LLMClient):
		return invalid("unknown llm %q (expected one of %s)", c.LLMClient, strings.Join(knownLLMs[1:], ", "))
	case c.History.MaxLength <= 0:
		return invalid("history.max_length must be positive, got %d", c.History.MaxLength)
	case strings.TrimSpace(c.Orchestrator.CommandPrefix) == "":
		return invalid("orchestrator.command_prefix must not be empty")
	case c.Orchestrator.MaxChainedToolCalls < 0:
		return invalid("orchestrator.max_chained_tool_calls must not be negative")
	case !contains(knownModes, c.Orchestrator.Mode):
		return invalid("unknown orchestrator.mode %q (expected auto or prompt)", c.Orchestrator.Mode)
	case !contains(knownVerbosity, c.Orchestrator.ToolVerbosity):
		return invalid("unknown orchestrator.tool_verbosity %q (expected none, info or all)", c.Orchestrator.ToolVerbosity)
	case c.Logging.Level != "" && !contains(knownLogLevels, c.Logging.Level):
		return invalid("unknown logging.level %q", c.Logging.Level)
	}
	for _, s := range c.AdditionalMCPServers {
		if s.Name == "" || s.Command == "" {
			return invalid("every additional_mcp_servers entry needs a name and a command")
		}
	}
	if _, err := c.GetToolset("default"); err != nil {
		return errors.Categorize(errors.CategoryConfig, err, "invalid toolsets")
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}

func invalid(format string, a ...any) error {
	return errors.Categorize(errors.CategoryConfig, nil, format, a...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
