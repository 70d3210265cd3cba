package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/config"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-m", "auto", "--tool-verbosity", "all", "--max-history", "20", "explain", "main.go"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "auto", opts.mode)
	assert.Equal(t, "default", opts.toolset)
	assert.Equal(t, "all", opts.toolVerbosity)
	assert.Equal(t, 20, opts.maxHistory)
	assert.Equal(t, "explain main.go", opts.initialInput)

	_, err = parseFlags([]string{"--bogus"}, io.Discard)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfig, errors.CategoryOf(err))

	_, err = parseFlags([]string{"--help"}, io.Discard)
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, &options{
		mode:       "auto",
		persona:    "reviewer",
		logLevel:   "debug",
		maxHistory: 5,
		configDir:  "/work/project",
	})

	assert.Equal(t, "auto", cfg.Orchestrator.Mode)
	assert.Equal(t, "info", cfg.Orchestrator.ToolVerbosity, "unset flags keep the config value")
	assert.Equal(t, "reviewer", cfg.Persona.Default)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.History.MaxLength)
	assert.Equal(t, filepath.Join("/work/project", config.Dir), cfg.Persona.ContextDir)
	assert.Equal(t, filepath.Join("/work/project", config.Dir, "keystone.log"), cfg.Logging.File)
}

func TestRunWithMockModel(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(project, config.Dir, "personas"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, config.Dir, "personas", "reviewer.md"), []byte("# Code Reviewer\nReview strictly."), 0644))

	var out bytes.Buffer
	err := run(context.Background(),
		[]string{"--config-dir", project, "--persona", "reviewer", "hello", "there"},
		strings.NewReader("/persona\n/quit\n"), &out, io.Discard)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Keystone is ready.")
	assert.Contains(t, out.String(), "You said: 'hello there'")
	assert.Contains(t, out.String(), "Active persona: Code Reviewer (reviewer)")
	assert.Contains(t, out.String(), "Shutting down. Goodbye.")
	assert.FileExists(t, filepath.Join(project, config.Dir, "keystone.log"))
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		category errors.Category
	}{
		{"mode", []string{"--config-dir", project, "-m", "yolo"}, errors.CategoryConfig},
		{"history", []string{"--config-dir", project, "--max-history", "-1"}, errors.CategoryConfig},
		{"persona", []string{"--config-dir", project, "--persona", "ghost"}, errors.CategoryPersona},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, strings.NewReader(""), io.Discard, io.Discard)
			require.Error(t, err)
			assert.Equal(t, tt.category, errors.CategoryOf(err))
		})
	}
}
