package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider() StaticContext {
	return StaticContext{
		Prompt: "You are keystone.",
		Personas: map[string]string{
			"reviewer":  "Review code carefully.",
			"architect": "Design systems.",
		},
		Names: map[string]string{"reviewer": "Code Reviewer"},
	}
}

func TestSwitch(t *testing.T) {
	state := &State{}
	s := NewSelector(state, testProvider(), zerolog.Nop())

	name, err := s.Switch("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Code Reviewer", name)
	assert.Equal(t, "reviewer", state.ActiveID)
	assert.Equal(t, "Review code carefully.", s.Prompt())

	name, err = s.Switch("architect")
	require.NoError(t, err)
	assert.Equal(t, "architect", name, "falls back to the id without a display name")
}

func TestSwitchRejectsUnknownID(t *testing.T) {
	state := &State{ActiveID: "reviewer"}
	s := NewSelector(state, testProvider(), zerolog.Nop())

	_, err := s.Switch("pirate")
	require.Error(t, err)

	var invalid *InvalidPersonaError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "pirate", invalid.ID)
	assert.Equal(t, []string{"architect", "reviewer"}, invalid.Valid)
	assert.Contains(t, err.Error(), "architect, reviewer")

	assert.Equal(t, "reviewer", state.ActiveID, "state must be unchanged")
}

func TestSwitchWithoutPersonas(t *testing.T) {
	s := NewSelector(&State{}, StaticContext{}, zerolog.Nop())
	_, err := s.Switch("anyone")

	var invalid *InvalidPersonaError
	require.True(t, errors.As(err, &invalid))
	assert.Empty(t, invalid.Valid)
	assert.Contains(t, err.Error(), "no personas are available")
}

func TestCurrent(t *testing.T) {
	state := &State{}
	s := NewSelector(state, testProvider(), zerolog.Nop())
	assert.Equal(t, "Active persona: default", s.Current())
	assert.Empty(t, s.Prompt())

	_, err := s.Switch("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Active persona: Code Reviewer (reviewer)", s.Current())
	assert.Equal(t, "reviewer", s.ActiveID())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "initial_prompt.md"), "\nFollow the framework.\n")
	writeFile(t, filepath.Join(dir, "personas", "catalyst.md"), "# Catalyst\n\nGenerate ideas.")
	writeFile(t, filepath.Join(dir, "personas", "team", "forge.yaml"), "name: Forge\nprompt: Build things.\n")
	writeFile(t, filepath.Join(dir, "personas", "plain.txt"), "No heading here.")
	writeFile(t, filepath.Join(dir, "personas", "ignored.json"), "{}")

	c := NewFileContext(dir)

	prompt, err := c.InitialPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Follow the framework.", prompt)

	defs, err := c.PersonaDefinitions()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"catalyst": "# Catalyst\n\nGenerate ideas.",
		"forge":    "Build things.",
		"plain":    "No heading here.",
	}, defs)

	assert.Equal(t, "Catalyst", c.DisplayName("catalyst"))
	assert.Equal(t, "Forge", c.DisplayName("forge"))
	assert.Empty(t, c.DisplayName("plain"))

	s := NewSelector(&State{}, c, zerolog.Nop())
	name, err := s.Switch("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", name)
}

func TestFileContextMissingDirectory(t *testing.T) {
	c := NewFileContext(filepath.Join(t.TempDir(), "absent"))

	prompt, err := c.InitialPrompt()
	require.NoError(t, err)
	assert.Empty(t, prompt)

	defs, err := c.PersonaDefinitions()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestFileContextInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "personas", "broken.yaml"), "name: [unterminated")

	s := NewSelector(&State{}, NewFileContext(dir), zerolog.Nop())
	_, err := s.Switch("broken")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryPersona, errors.CategoryOf(err))
}
