package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AssistantID is the id of the built-in persona.
const AssistantID = "assistant"

var ErrPersonaNotFound = errors.New("persona not found")

// AIPersona is a character the model plays for a session.
type AIPersona struct {
	ID               string `yaml:"id" json:"id"`
	Name             string `yaml:"name" json:"name"`
	Style            string `yaml:"style" json:"style"`
	KnowledgeBaseURL string `yaml:"knowledgeBaseUrl,omitempty" json:"knowledgeBaseUrl,omitempty"`
	SystemPrompt     string `yaml:"systemPrompt" json:"systemPrompt"`
}

// Validate checks the fields a session needs.
func (p AIPersona) Validate() error {
	switch {
	case p.ID == "":
		return errors.New("persona: id is required")
	case p.Name == "":
		return fmt.Errorf("persona %s: name is required", p.ID)
	case p.SystemPrompt == "":
		return fmt.Errorf("persona %s: systemPrompt is required", p.ID)
	}
	return nil
}

// Instruction is the system instruction sent at session setup.
func (p AIPersona) Instruction() string {
	if p.KnowledgeBaseURL == "" {
		return p.SystemPrompt
	}
	return p.SystemPrompt + "\n\nReference material: " + p.KnowledgeBaseURL
}

// Assistant is the built-in general-purpose persona.
func Assistant() AIPersona {
	return AIPersona{
		ID:    AssistantID,
		Name:  "Sales Assistant",
		Style: "default",
		SystemPrompt: "You are a helpful voice assistant for a sales team. " +
			"Answer briefly and conversationally. Help with deal strategy, " +
			"follow-up wording and meeting preparation.",
	}
}

type personaFile struct {
	Personas []AIPersona `yaml:"personas"`
}

// LoadPersonas reads a persona file. Style defaults to "default".
func LoadPersonas(path string) ([]AIPersona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return ParsePersonas(data)
}

// ParsePersonas decodes persona YAML and validates every entry.
func ParsePersonas(data []byte) ([]AIPersona, error) {
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Personas))
	for i := range f.Personas {
		p := &f.Personas[i]
		if p.Style == "" {
			p.Style = "default"
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("persona %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return f.Personas, nil
}

// ResolvePersona picks the persona for id. With no file the built-in
// assistant is the only choice; an empty id selects the first entry.
func (c *Config) ResolvePersona() (AIPersona, error) {
	if c.PersonaFile == "" {
		if c.PersonaID == "" || c.PersonaID == AssistantID {
			return Assistant(), nil
		}
		return AIPersona{}, fmt.Errorf("%w: %s (no PERSONA_FILE)", ErrPersonaNotFound, c.PersonaID)
	}
	personas, err := LoadPersonas(c.PersonaFile)
	if err != nil {
		return AIPersona{}, err
	}
	if c.PersonaID == AssistantID {
		return Assistant(), nil
	}
	if c.PersonaID == "" {
		if len(personas) == 0 {
			return Assistant(), nil
		}
		return personas[0], nil
	}
	for _, p := range personas {
		if p.ID == c.PersonaID {
			return p, nil
		}
	}
	return AIPersona{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, c.PersonaID)
}
