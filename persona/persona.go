// Package persona tracks which behavioral profile the model is asked to adopt
// and where the profiles come from.
package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/rs/zerolog"
)

// ContextProvider supplies the persona definitions and the initial system
// prompt of a run.
type ContextProvider interface {
	// PersonaDefinitions maps persona id to its definition text.
	PersonaDefinitions() (map[string]string, error)
	InitialPrompt() (string, error)
}

// Namer is implemented by providers that know a display name for a persona.
type Namer interface {
	DisplayName(id string) string
}

// State is the active persona. The zero value means no persona is active.
type State struct {
	ActiveID string
}

// InvalidPersonaError is returned when switching to an id that the context
// provider does not advertise.
type InvalidPersonaError struct {
	ID    string
	Valid []string
}

func (e *InvalidPersonaError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("unknown persona %q: no personas are available", e.ID)
	}
	return fmt.Sprintf("unknown persona %q, valid ids: %s", e.ID, strings.Join(e.Valid, ", "))
}

// Selector validates persona switches against the context provider.
type Selector struct {
	state    *State
	provider ContextProvider
	logger   zerolog.Logger
}

// NewSelector returns a selector that mutates state.
func NewSelector(state *State, provider ContextProvider, logger zerolog.Logger) *Selector {
	return &Selector{
		state:    state,
		provider: provider,
		logger:   logger.With().Str("component", "persona").Logger(),
	}
}

// Switch makes id the active persona and returns its display name. An unknown
// id yields *InvalidPersonaError and leaves the state unchanged.
func (s *Selector) Switch(id string) (string, error) {
	defs, err := s.definitions()
	if err != nil {
		return "", err
	}

	id = strings.TrimSpace(id)
	if _, ok := defs[id]; !ok {
		return "", &InvalidPersonaError{ID: id, Valid: sortedIDs(defs)}
	}

	previous := s.state.ActiveID
	s.state.ActiveID = id
	s.logger.Info().Str("from", previous).Str("to", id).Msg("Persona switched")
	return s.displayName(id), nil
}

// Current returns a status line naming the active persona.
func (s *Selector) Current() string {
	if s.state.ActiveID == "" {
		return "Active persona: default"
	}
	return fmt.Sprintf("Active persona: %s (%s)", s.displayName(s.state.ActiveID), s.state.ActiveID)
}

// ActiveID returns the active persona id, or "" when none is set.
func (s *Selector) ActiveID() string { return s.state.ActiveID }

// Prompt returns the definition text of the active persona. It is empty when
// no persona is active or the definition vanished from the provider.
func (s *Selector) Prompt() string {
	if s.state.ActiveID == "" {
		return ""
	}
	defs, err := s.definitions()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not load persona definitions")
		return ""
	}
	return defs[s.state.ActiveID]
}

// Available returns the sorted ids advertised by the provider.
func (s *Selector) Available() ([]string, error) {
	defs, err := s.definitions()
	if err != nil {
		return nil, err
	}
	return sortedIDs(defs), nil
}

func (s *Selector) definitions() (map[string]string, error) {
	if s.provider == nil {
		return nil, nil
	}
	defs, err := s.provider.PersonaDefinitions()
	if err != nil {
		return nil, errors.Categorize(errors.CategoryPersona, err, "could not load persona definitions")
	}
	return defs, nil
}

func (s *Selector) displayName(id string) string {
	if n, ok := s.provider.(Namer); ok {
		if name := n.DisplayName(id); name != "" {
			return name
		}
	}
	return id
}

func sortedIDs(defs map[string]string) []string {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
